package projection_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"PoolCore/internal/core"
	"PoolCore/internal/event"
	"PoolCore/internal/observability"
	"PoolCore/internal/persistence"
	"PoolCore/internal/projection"
	"PoolCore/internal/testutil"
)

func setupMigratedDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)

	migrator := persistence.NewMigrator(db, "../../migrations", observability.NewLogger("test"))
	if err := migrator.Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("migrate: %v", err)
	}
	return db, cleanup
}

func fillOutput(sequence int64, account string, shares int64) core.Output {
	return core.Output{
		Envelope: event.RecordEnvelope{
			Sequence:   sequence,
			RecordType: event.RecordTypeOrderFilled,
			AssetID:    1,
			OrderID:    uint64(sequence),
			Account:    account,
			Timestamp:  time.Unix(1_700_000_000, 0).UTC(),
			Payload: event.OrderFilled{
				OrderID:      uint64(sequence),
				Account:      account,
				AssetID:      1,
				Direction:    "add",
				SharesMinted: shares,
			},
		},
	}
}

func runWorker(t *testing.T, db *sql.DB, outputs []core.Output) {
	t.Helper()
	ch := make(chan core.Output, len(outputs))
	for _, out := range outputs {
		ch <- out
	}
	close(ch)

	worker := projection.NewWorker(db, ch, zerolog.Nop(), nil)
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("worker run: %v", err)
	}
}

func TestWorker_FoldsFillsIntoHoldings(t *testing.T) {
	db, cleanup := setupMigratedDB(t)
	defer cleanup()
	ctx := context.Background()

	runWorker(t, db, []core.Output{
		fillOutput(1, "alice", 200_000_000_000),
		fillOutput(2, "bob", 100_000_000_000),
		fillOutput(3, "alice", -50_000_000_000),
	})

	alice, err := projection.GetAccountShares(ctx, db, "alice")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if alice.Shares != 150_000_000_000 {
		t.Errorf("alice shares: got %d, want 150_000_000_000", alice.Shares)
	}
	if alice.AsOfSequence != 3 {
		t.Errorf("alice sequence: got %d, want 3", alice.AsOfSequence)
	}

	bob, err := projection.GetAccountShares(ctx, db, "bob")
	if err != nil {
		t.Fatalf("get bob: %v", err)
	}
	if bob.Shares != 100_000_000_000 {
		t.Errorf("bob shares: got %d, want 100_000_000_000", bob.Shares)
	}
}

func TestWorker_RedeliveryIsNoop(t *testing.T) {
	db, cleanup := setupMigratedDB(t)
	defer cleanup()
	ctx := context.Background()

	outputs := []core.Output{fillOutput(1, "alice", 200_000_000_000)}
	runWorker(t, db, outputs)
	runWorker(t, db, outputs) // redelivery with the same sequence

	alice, err := projection.GetAccountShares(ctx, db, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if alice.Shares != 200_000_000_000 {
		t.Errorf("shares after redelivery: got %d, want 200_000_000_000", alice.Shares)
	}
}

func TestGetAccountShares_AbsentAccountIsZero(t *testing.T) {
	db, cleanup := setupMigratedDB(t)
	defer cleanup()

	got, err := projection.GetAccountShares(context.Background(), db, "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Shares != 0 || got.AsOfSequence != 0 {
		t.Errorf("got %+v, want zero holdings", got)
	}
}

func TestRebuild_FromSettlementLog(t *testing.T) {
	db, cleanup := setupMigratedDB(t)
	defer cleanup()
	ctx := context.Background()

	// Write fills to the settlement log only; the holdings table starts
	// stale with a bogus row.
	writer := persistence.NewRecordWriter(db)
	var rows []persistence.RecordRow
	for _, out := range []core.Output{
		fillOutput(1, "alice", 200_000_000_000),
		fillOutput(2, "alice", -80_000_000_000),
		fillOutput(3, "bob", 50_000_000_000),
	} {
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
	if err := writer.WriteBatch(ctx, tx, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO settlement.account_shares (account, shares, updated_seq) VALUES ('stale', 999, 1)`); err != nil {
		t.Fatalf("seed stale row: %v", err)
	}

	if err := projection.Rebuild(ctx, db); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	alice, err := projection.GetAccountShares(ctx, db, "alice")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if alice.Shares != 120_000_000_000 || alice.AsOfSequence != 2 {
		t.Errorf("alice: got %+v", alice)
	}

	stale, err := projection.GetAccountShares(ctx, db, "stale")
	if err != nil {
		t.Fatalf("get stale: %v", err)
	}
	if stale.Shares != 0 {
		t.Error("rebuild should drop rows not backed by the log")
	}
}
