package core

import (
	"context"
	"time"

	"PoolCore/internal/event"
	"PoolCore/internal/poolerr"
	"PoolCore/internal/registry"
)

// Borrow lends spot liquidity out as trading credit. Governance only; the
// trading venue is the sole authorized borrower and receives principal
// minus the borrow fee, which the pool retains as revenue.
func (e *Engine) Borrow(ctx context.Context, actor string, assetID registry.AssetID, receiver string, principal, fee int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	defer e.observeSettle("borrow", start)

	if err := e.requireGovernance(actor); err != nil {
		return err
	}

	now := e.clock()
	if err := e.ledger.Borrow(ctx, now, assetID, receiver, principal, fee); err != nil {
		return err
	}

	e.emit(event.RecordTypeAssetBorrowed, assetID, 0, receiver, event.AssetBorrowed{
		AssetID:   uint8(assetID),
		Receiver:  receiver,
		Principal: principal,
		Fee:       fee,
	})

	if err := e.validator.ValidateNonNegative(assetID); err != nil {
		e.log.Error().Err(err).Uint8("asset_id", uint8(assetID)).Msg("ledger invariant violated after borrow")
		return err
	}

	e.observeAsset(assetID)
	if e.metrics != nil {
		if asset, ok := e.registry.Get(assetID); ok {
			e.metrics.Borrows.WithLabelValues(asset.Symbol).Inc()
		}
	}
	e.log.Info().
		Uint8("asset_id", uint8(assetID)).
		Str("receiver", receiver).
		Int64("principal", principal).
		Int64("fee", fee).
		Msg("asset borrowed")

	return nil
}

// Repay returns borrowed principal to spot liquidity. The payer has already
// delivered principal plus fee to the pool contract; badDebt writes off
// credit that will never come back, shrinking the pool's conserved total.
func (e *Engine) Repay(ctx context.Context, actor string, assetID registry.AssetID, payer string, principal, fee, badDebt int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	defer e.observeSettle("repay", start)

	if err := e.requireGovernance(actor); err != nil {
		return err
	}

	now := e.clock()
	if err := e.ledger.Repay(ctx, now, assetID, payer, principal, fee, badDebt); err != nil {
		return err
	}

	e.emit(event.RecordTypeAssetRepaid, assetID, 0, payer, event.AssetRepaid{
		AssetID:   uint8(assetID),
		Payer:     payer,
		Principal: principal,
		Fee:       fee,
		BadDebt:   badDebt,
	})

	if err := e.validator.ValidateNonNegative(assetID); err != nil {
		e.log.Error().Err(err).Uint8("asset_id", uint8(assetID)).Msg("ledger invariant violated after repay")
		return err
	}

	e.observeAsset(assetID)
	if e.metrics != nil {
		if asset, ok := e.registry.Get(assetID); ok {
			e.metrics.Repays.WithLabelValues(asset.Symbol).Inc()
			if badDebt > 0 {
				e.metrics.BadDebtWritten.WithLabelValues(asset.Symbol).Add(float64(badDebt))
			}
		}
	}
	e.log.Info().
		Uint8("asset_id", uint8(assetID)).
		Str("payer", payer).
		Int64("principal", principal).
		Int64("fee", fee).
		Int64("bad_debt", badDebt).
		Msg("asset repaid")

	return nil
}

// AccrueFunding advances an asset's funding index to the current clock.
// Anyone may call it; accrual is idempotent within a timestamp, so keepers
// can poke assets on a schedule without coordination.
func (e *Engine) AccrueFunding(assetID registry.AssetID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.registry.Get(assetID); !ok {
		return poolerr.Detail(poolerr.ErrUnknownAsset, "accrue id=%d", assetID)
	}
	if err := e.ledger.Accrue(assetID, e.clock()); err != nil {
		return err
	}

	e.observeAsset(assetID)
	if e.metrics != nil {
		if asset, ok := e.registry.Get(assetID); ok {
			e.metrics.FundingAccruals.WithLabelValues(asset.Symbol).Inc()
		}
	}
	return nil
}
