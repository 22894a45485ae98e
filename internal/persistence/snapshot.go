package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"PoolCore/internal/core"
	"PoolCore/internal/event"
	"PoolCore/internal/registry"
)

// SnapshotStore persists full engine snapshots so restart replays only
// the settlement-log tail instead of the whole history.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save writes a snapshot keyed by its record sequence. Re-snapshotting
// the same sequence overwrites, which keeps crash-retry safe.
func (s *SnapshotStore) Save(ctx context.Context, snap core.SnapshotState) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settlement.snapshots
			(snapshot_id, sequence, data, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, size_bytes = $4
	`, uuid.New(), snap.Sequence, data, len(data), time.Now().UTC())

	return err
}

// LoadLatest returns the most recent snapshot, or ok=false on a cold start.
func (s *SnapshotStore) LoadLatest(ctx context.Context) (core.SnapshotState, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data FROM settlement.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return core.SnapshotState{}, false, nil
		}
		return core.SnapshotState{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return core.SnapshotState{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// LoadRecordsFrom reads settlement records with sequence > after, in
// order, decoded for replay into the engine.
func (s *SnapshotStore) LoadRecordsFrom(ctx context.Context, after int64, limit int) ([]event.RecordEnvelope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, record_type, asset_id, order_id, account, payload, recorded_at
		FROM settlement.records
		WHERE sequence > $1
		ORDER BY sequence ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []event.RecordEnvelope
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(
			&r.Sequence, &r.RecordType, &r.AssetID, &r.OrderID,
			&r.Account, &r.Payload, &r.RecordedAt,
		); err != nil {
			return nil, err
		}
		envelope, err := envelopeFromRow(r)
		if err != nil {
			return nil, err
		}
		records = append(records, envelope)
	}
	return records, rows.Err()
}

// LatestSequence returns the highest sequence in the settlement log,
// zero when empty.
func (s *SnapshotStore) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM settlement.records
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

func envelopeFromRow(r RecordRow) (event.RecordEnvelope, error) {
	recordType, err := event.ParseRecordType(r.RecordType)
	if err != nil {
		return event.RecordEnvelope{}, fmt.Errorf("sequence %d: %w", r.Sequence, err)
	}
	payload, err := event.DecodePayload(recordType, r.Payload)
	if err != nil {
		return event.RecordEnvelope{}, fmt.Errorf("decode sequence %d: %w", r.Sequence, err)
	}
	return event.RecordEnvelope{
		Sequence:   r.Sequence,
		RecordType: recordType,
		AssetID:    registry.AssetID(r.AssetID),
		OrderID:    uint64(r.OrderID),
		Account:    r.Account,
		Timestamp:  r.RecordedAt,
		Payload:    payload,
	}, nil
}
