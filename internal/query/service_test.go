package query_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"PoolCore/internal/core"
	"PoolCore/internal/event"
	"PoolCore/internal/observability"
	"PoolCore/internal/persistence"
	"PoolCore/internal/query"
	"PoolCore/internal/registry"
	"PoolCore/internal/testutil"
)

// ============================================================
// Fixtures
// ============================================================

func setupService(t *testing.T) (*query.Service, *sql.DB, func()) {
	t.Helper()
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)

	migrator := persistence.NewMigrator(db, "../../migrations", observability.NewLogger("test"))
	if err := migrator.Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("migrate: %v", err)
	}
	return query.NewService(nil, db), db, cleanup
}

func placedOutput(sequence int64, orderID uint64, account string) core.Output {
	return core.Output{
		Envelope: event.RecordEnvelope{
			Sequence:   sequence,
			RecordType: event.RecordTypeOrderPlaced,
			AssetID:    1,
			OrderID:    orderID,
			Account:    account,
			Timestamp:  time.Unix(1_700_000_000, 0).UTC(),
			Payload: event.OrderPlaced{
				OrderID:   orderID,
				Account:   account,
				AssetID:   1,
				Amount:    100,
				Direction: "add",
				PlacedAt:  1_700_000_000,
			},
		},
	}
}

func filledOutput(sequence int64, orderID uint64, account string, assetID registry.AssetID) core.Output {
	return core.Output{
		Envelope: event.RecordEnvelope{
			Sequence:   sequence,
			RecordType: event.RecordTypeOrderFilled,
			AssetID:    assetID,
			OrderID:    orderID,
			Account:    account,
			Timestamp:  time.Unix(1_700_000_100, 0).UTC(),
			Payload: event.OrderFilled{
				OrderID:      orderID,
				Account:      account,
				AssetID:      uint8(assetID),
				Direction:    "add",
				Amount:       100,
				SharesMinted: 100,
			},
		},
	}
}

func writeOutputs(t *testing.T, db *sql.DB, outputs []core.Output) {
	t.Helper()
	writer := persistence.NewRecordWriter(db)
	var rows []persistence.RecordRow
	for _, out := range outputs {
		row, err := persistence.RowFromOutput(out)
		if err != nil {
			t.Fatalf("flatten: %v", err)
		}
		rows = append(rows, row)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := writer.WriteBatch(context.Background(), tx, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// seedHistory writes a small mixed log:
//
//	seq 1  OrderPlaced  order 1  alice  asset 1
//	seq 2  OrderPlaced  order 2  bob    asset 1
//	seq 3  OrderFilled  order 1  alice  asset 1
//	seq 4  OrderFilled  order 2  bob    asset 2
func seedHistory(t *testing.T, db *sql.DB) {
	t.Helper()
	writeOutputs(t, db, []core.Output{
		placedOutput(1, 1, "alice"),
		placedOutput(2, 2, "bob"),
		filledOutput(3, 1, "alice", 1),
		filledOutput(4, 2, "bob", 2),
	})
}

// ============================================================
// Settlement history
// ============================================================

func TestGetSettlementHistory_NewestFirst(t *testing.T) {
	svc, db, cleanup := setupService(t)
	defer cleanup()
	seedHistory(t, db)

	records, err := svc.GetSettlementHistory(context.Background(), query.HistoryFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	for i, want := range []int64{4, 3, 2, 1} {
		if records[i].Sequence != want {
			t.Errorf("record %d sequence: got %d, want %d", i, records[i].Sequence, want)
		}
	}
}

func TestGetSettlementHistory_AccountFilter(t *testing.T) {
	svc, db, cleanup := setupService(t)
	defer cleanup()
	seedHistory(t, db)

	account := "alice"
	records, err := svc.GetSettlementHistory(context.Background(), query.HistoryFilter{Account: &account})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, r := range records {
		if r.Account != "alice" {
			t.Errorf("got account %q, want alice", r.Account)
		}
	}
}

func TestGetSettlementHistory_RecordTypeAndAssetFilter(t *testing.T) {
	svc, db, cleanup := setupService(t)
	defer cleanup()
	seedHistory(t, db)

	recordType := "OrderFilled"
	assetID := int16(2)
	records, err := svc.GetSettlementHistory(context.Background(), query.HistoryFilter{
		RecordType: &recordType,
		AssetID:    &assetID,
	})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Sequence != 4 {
		t.Errorf("got sequence %d, want 4", records[0].Sequence)
	}
}

func TestGetSettlementHistory_CursorPagination(t *testing.T) {
	svc, db, cleanup := setupService(t)
	defer cleanup()
	seedHistory(t, db)

	first, err := svc.GetSettlementHistory(context.Background(), query.HistoryFilter{Limit: 2})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 2 || first[0].Sequence != 4 || first[1].Sequence != 3 {
		t.Fatalf("first page: got %+v", first)
	}

	cursor := first[len(first)-1].Sequence
	second, err := svc.GetSettlementHistory(context.Background(), query.HistoryFilter{
		AfterSequence: &cursor,
		Limit:         2,
	})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second) != 2 || second[0].Sequence != 2 || second[1].Sequence != 1 {
		t.Fatalf("second page: got %+v", second)
	}
}

// ============================================================
// Order history
// ============================================================

func TestGetOrderHistory_OldestFirst(t *testing.T) {
	svc, db, cleanup := setupService(t)
	defer cleanup()
	seedHistory(t, db)

	records, err := svc.GetOrderHistory(context.Background(), 1)
	if err != nil {
		t.Fatalf("order history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].RecordType != "OrderPlaced" || records[1].RecordType != "OrderFilled" {
		t.Errorf("got types %q, %q, want OrderPlaced then OrderFilled",
			records[0].RecordType, records[1].RecordType)
	}
}
