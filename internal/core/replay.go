package core

import (
	"fmt"
	"time"

	"PoolCore/internal/event"
	"PoolCore/internal/orders"
	"PoolCore/internal/registry"
)

// ApplyRecord replays one settlement record into engine state. Records
// carry their terminal ledger effect, so replay applies deltas directly
// without re-running validation, external token calls, or record emission.
// Only records with a sequence past the restored snapshot may be applied,
// in sequence order.
//
// Funding indexes are not advanced during replay; the next live accrual
// covers the whole gap from each asset's persisted LastUpdate.
func (e *Engine) ApplyRecord(rec event.RecordEnvelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec.Sequence <= e.sequence {
		return nil // already reflected in the snapshot
	}

	switch p := rec.Payload.(type) {
	case event.OrderPlaced:
		dir := orders.DirectionAdd
		if p.Direction == orders.DirectionRemove.String() {
			dir = orders.DirectionRemove
		}
		e.queue.Load(orders.LiquidityOrder{
			OrderID:   p.OrderID,
			Account:   p.Account,
			AssetID:   registry.AssetID(p.AssetID),
			Amount:    p.Amount,
			Direction: dir,
			MinOut:    p.MinOut,
			PlacedAt:  time.Unix(p.PlacedAt, 0).UTC(),
		})

	case event.OrderFilled:
		if err := e.queue.Remove(p.OrderID); err != nil {
			return fmt.Errorf("replay fill %d: %w", p.OrderID, err)
		}
		id := registry.AssetID(p.AssetID)
		entry := e.ledger.Entry(id)
		if p.SharesMinted >= 0 {
			entry.SpotLiquidity += p.Amount - p.Fee - p.GasCompensation
		} else {
			entry.SpotLiquidity -= p.AmountOut + p.GasCompensation
		}
		entry.CollectedFee += p.Fee
		e.ledger.RestoreEntry(id, entry)
		e.shareSupply += p.SharesMinted

	case event.OrderCancelled:
		if err := e.queue.Remove(p.OrderID); err != nil {
			return fmt.Errorf("replay cancel %d: %w", p.OrderID, err)
		}

	case event.AssetBorrowed:
		id := registry.AssetID(p.AssetID)
		entry := e.ledger.Entry(id)
		entry.SpotLiquidity += p.Fee - p.Principal
		entry.Credit += p.Principal
		entry.CollectedFee += p.Fee
		e.ledger.RestoreEntry(id, entry)

	case event.AssetRepaid:
		id := registry.AssetID(p.AssetID)
		entry := e.ledger.Entry(id)
		entry.SpotLiquidity += p.Principal + p.Fee
		entry.Credit -= p.Principal + p.BadDebt
		entry.CollectedFee += p.Fee
		e.ledger.RestoreEntry(id, entry)

	default:
		return fmt.Errorf("replay sequence %d: unknown payload %T", rec.Sequence, rec.Payload)
	}

	e.sequence = rec.Sequence
	return nil
}
