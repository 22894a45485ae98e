// Package persistence owns the Postgres settlement log: batch record
// writes, state snapshots, replay reads, and schema migrations.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PoolCore/internal/core"
	"PoolCore/internal/event"
)

// RecordWriter appends settlement records to settlement.records using
// multi-row INSERT. ON CONFLICT (sequence) DO NOTHING makes retries
// idempotent; the engine assigns each sequence exactly once.
type RecordWriter struct {
	db *sql.DB
}

// RecordRow is one settlement.records row.
type RecordRow struct {
	Sequence   int64
	RecordType string
	AssetID    int16
	OrderID    int64
	Account    string
	Payload    []byte // JSON-encoded record payload
	RecordedAt time.Time
}

// RowFromOutput flattens an engine output into its storage form.
func RowFromOutput(out core.Output) (RecordRow, error) {
	payload, err := event.MarshalPayload(out.Envelope.Payload)
	if err != nil {
		return RecordRow{}, fmt.Errorf("marshal record %d: %w", out.Envelope.Sequence, err)
	}
	return RecordRow{
		Sequence:   out.Envelope.Sequence,
		RecordType: out.Envelope.RecordType.String(),
		AssetID:    int16(out.Envelope.AssetID),
		OrderID:    int64(out.Envelope.OrderID),
		Account:    out.Envelope.Account,
		Payload:    payload,
		RecordedAt: out.Envelope.Timestamp,
	}, nil
}

func NewRecordWriter(db *sql.DB) *RecordWriter {
	return &RecordWriter{db: db}
}

// WriteBatch writes a batch of records in one statement inside tx.
func (w *RecordWriter) WriteBatch(ctx context.Context, tx *sql.Tx, records []RecordRow) error {
	if len(records) == 0 {
		return nil
	}

	query := `INSERT INTO settlement.records
		(sequence, record_type, asset_id, order_id, account, payload, recorded_at)
		VALUES `

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*7)

	for i, r := range records {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			r.Sequence, r.RecordType, r.AssetID, r.OrderID,
			r.Account, r.Payload, r.RecordedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
