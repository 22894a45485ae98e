package projection

import (
	"context"
	"database/sql"
	"fmt"
)

// AccountShares is one holdings row.
type AccountShares struct {
	Account      string `json:"account"`
	Shares       int64  `json:"shares"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// applyFill folds one fill's share delta into the holdings table. The
// sequence guard makes reapplication after a rebuild or redelivery a
// no-op.
func applyFill(ctx context.Context, db *sql.DB, account string, sharesDelta, sequence int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settlement.account_shares (account, shares, updated_seq)
		VALUES ($1, $2, $3)
		ON CONFLICT (account) DO UPDATE
		SET shares = settlement.account_shares.shares + $2, updated_seq = $3
		WHERE settlement.account_shares.updated_seq < $3
	`, account, sharesDelta, sequence)
	return err
}

// GetAccountShares reads one account's holdings; absent accounts hold zero.
func GetAccountShares(ctx context.Context, db *sql.DB, account string) (AccountShares, error) {
	row := db.QueryRowContext(ctx, `
		SELECT shares, updated_seq FROM settlement.account_shares WHERE account = $1
	`, account)

	result := AccountShares{Account: account}
	err := row.Scan(&result.Shares, &result.AsOfSequence)
	if err == sql.ErrNoRows {
		return result, nil
	}
	if err != nil {
		return AccountShares{}, err
	}
	return result, nil
}

// Rebuild recomputes the holdings table from the settlement log inside
// one transaction. Used after drops or operator intervention.
func Rebuild(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM settlement.account_shares`); err != nil {
		return fmt.Errorf("clear holdings: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settlement.account_shares (account, shares, updated_seq)
		SELECT account,
		       SUM((payload->>'shares_minted')::BIGINT),
		       MAX(sequence)
		FROM settlement.records
		WHERE record_type = 'OrderFilled'
		GROUP BY account
	`); err != nil {
		return fmt.Errorf("rebuild holdings: %w", err)
	}

	return tx.Commit()
}
