// Package ledger holds the mutable per-asset financial state of the pool:
// spot liquidity, collected fees, and outstanding credit. All amounts are
// AmountConfig-scaled fixed-point.
//
// Collected fees are carved out of the conservation identity: they live
// inside spot liquidity (a fee both raises spotLiquidity and is recorded in
// collectedFee) and are only ever added by ledger operations.
package ledger

import (
	"context"
	"time"

	"PoolCore/internal/funding"
	"PoolCore/internal/poolerr"
	"PoolCore/internal/registry"
)

// TokenTransferor moves underlying tokens out of the pool. It is an
// external collaborator: calls are synchronous and fail loudly, and the
// ledger commits no state before a transfer succeeds.
type TokenTransferor interface {
	Transfer(ctx context.Context, token, to string, amount int64) error
}

// Entry is the per-asset ledger record.
type Entry struct {
	SpotLiquidity int64 // on-hand balance held by the pool
	CollectedFee  int64 // accumulated fee revenue, monotone outside governance sweeps
	Credit        int64 // outstanding borrowed principal owed back
}

// Ledger owns every asset's Entry. Not internally synchronized; the
// settlement engine serializes all mutations.
type Ledger struct {
	registry *registry.Registry
	funding  *funding.Engine
	tokens   TokenTransferor

	entries map[registry.AssetID]*Entry
}

func NewLedger(reg *registry.Registry, fundingEngine *funding.Engine, tokens TokenTransferor) *Ledger {
	return &Ledger{
		registry: reg,
		funding:  fundingEngine,
		tokens:   tokens,
		entries:  make(map[registry.AssetID]*Entry),
	}
}

func (l *Ledger) entry(id registry.AssetID) *Entry {
	e, ok := l.entries[id]
	if !ok {
		e = &Entry{}
		l.entries[id] = e
	}
	return e
}

// Entry returns a copy of the asset's ledger record.
func (l *Ledger) Entry(id registry.AssetID) Entry {
	e, ok := l.entries[id]
	if !ok {
		return Entry{}
	}
	return *e
}

// Accrue advances the asset's funding index against current balances.
// Invoked lazily on-path by every operation that depends on funding.
func (l *Ledger) Accrue(id registry.AssetID, now time.Time) error {
	e := l.entry(id)
	_, err := l.funding.Accrue(id, now, e.SpotLiquidity, e.Credit)
	return err
}

// Borrow lends principal out of spot liquidity to receiver. The fee is
// withheld from the outgoing transfer and retained by the pool, so the
// receiver gets principal − fee while credit records the full principal.
func (l *Ledger) Borrow(ctx context.Context, now time.Time, id registry.AssetID, receiver string, principal, fee int64) error {
	asset, ok := l.registry.Get(id)
	if !ok {
		return poolerr.Detail(poolerr.ErrUnknownAsset, "borrow id=%d", id)
	}
	if !asset.Flags.Enabled {
		return poolerr.Detail(poolerr.ErrAssetDisabled, "borrow %s", asset.Symbol)
	}
	if !asset.Flags.Openable {
		return poolerr.Detail(poolerr.ErrAssetNotOpenable, "borrow %s", asset.Symbol)
	}
	if principal <= 0 || fee < 0 || fee > principal {
		return poolerr.Detail(poolerr.ErrInvalidParams, "borrow principal=%d fee=%d", principal, fee)
	}

	if err := l.Accrue(id, now); err != nil {
		return err
	}

	e := l.entry(id)
	if principal > e.SpotLiquidity {
		return poolerr.Detail(poolerr.ErrInsufficientLiquidity,
			"borrow %s principal=%d spot=%d", asset.Symbol, principal, e.SpotLiquidity)
	}

	// External call before any commit: a failed transfer leaves the ledger
	// untouched.
	if err := l.tokens.Transfer(ctx, asset.Token, receiver, principal-fee); err != nil {
		return err
	}

	e.SpotLiquidity = e.SpotLiquidity - principal + fee
	e.Credit += principal
	e.CollectedFee += fee
	return nil
}

// Repay returns principal (plus fee) the payer has already delivered to the
// pool's token account. badDebt is a recognized loss written off against
// credit with no matching liquidity increase; when and by whom it is
// invoked is the liquidation collaborator's decision.
func (l *Ledger) Repay(ctx context.Context, now time.Time, id registry.AssetID, payer string, principal, fee, badDebt int64) error {
	asset, ok := l.registry.Get(id)
	if !ok {
		return poolerr.Detail(poolerr.ErrUnknownAsset, "repay id=%d", id)
	}
	if principal < 0 || fee < 0 || badDebt < 0 || principal+badDebt == 0 {
		return poolerr.Detail(poolerr.ErrInvalidParams,
			"repay principal=%d fee=%d badDebt=%d", principal, fee, badDebt)
	}

	if err := l.Accrue(id, now); err != nil {
		return err
	}

	e := l.entry(id)
	if principal+badDebt > e.Credit {
		return poolerr.Detail(poolerr.ErrRepayExceedsCredit,
			"repay %s principal=%d badDebt=%d credit=%d (payer %s)",
			asset.Symbol, principal, badDebt, e.Credit, payer)
	}

	e.Credit -= principal + badDebt
	e.SpotLiquidity += principal + fee
	e.CollectedFee += fee
	return nil
}

// DepositLiquidity adds amount to spot liquidity. Never touches credit.
func (l *Ledger) DepositLiquidity(id registry.AssetID, amount int64) error {
	if _, ok := l.registry.Get(id); !ok {
		return poolerr.Detail(poolerr.ErrUnknownAsset, "deposit id=%d", id)
	}
	if amount <= 0 {
		return poolerr.Detail(poolerr.ErrInvalidParams, "deposit amount=%d", amount)
	}
	l.entry(id).SpotLiquidity += amount
	return nil
}

// WithdrawLiquidity removes amount from spot liquidity. Never touches credit.
func (l *Ledger) WithdrawLiquidity(id registry.AssetID, amount int64) error {
	if _, ok := l.registry.Get(id); !ok {
		return poolerr.Detail(poolerr.ErrUnknownAsset, "withdraw id=%d", id)
	}
	if amount <= 0 {
		return poolerr.Detail(poolerr.ErrInvalidParams, "withdraw amount=%d", amount)
	}
	e := l.entry(id)
	if amount > e.SpotLiquidity {
		return poolerr.Detail(poolerr.ErrInsufficientLiquidity,
			"withdraw amount=%d spot=%d", amount, e.SpotLiquidity)
	}
	e.SpotLiquidity -= amount
	return nil
}

// CollectFee records fee revenue whose cash is already inside spot
// liquidity (e.g. the fee retained from a liquidity deposit).
func (l *Ledger) CollectFee(id registry.AssetID, fee int64) error {
	if _, ok := l.registry.Get(id); !ok {
		return poolerr.Detail(poolerr.ErrUnknownAsset, "collect fee id=%d", id)
	}
	if fee < 0 {
		return poolerr.Detail(poolerr.ErrInvalidParams, "fee=%d", fee)
	}
	l.entry(id).CollectedFee += fee
	return nil
}

// Transfer exposes the pool's outbound token transfer for settlement
// payouts, keeping the collaborator behind one seam.
func (l *Ledger) Transfer(ctx context.Context, token, to string, amount int64) error {
	return l.tokens.Transfer(ctx, token, to, amount)
}

// Snapshot returns a copy of every entry (snapshot creation).
func (l *Ledger) Snapshot() map[registry.AssetID]Entry {
	result := make(map[registry.AssetID]Entry, len(l.entries))
	for id, e := range l.entries {
		result[id] = *e
	}
	return result
}

// RestoreEntry directly sets an asset's entry (snapshot restore).
func (l *Ledger) RestoreEntry(id registry.AssetID, e Entry) {
	copied := e
	l.entries[id] = &copied
}
