package core

import (
	"time"

	"PoolCore/internal/funding"
	"PoolCore/internal/ledger"
	"PoolCore/internal/orders"
	"PoolCore/internal/registry"
)

// SnapshotState is the full serializable engine state. Snapshots bound
// replay on restart: restore the latest one, then re-apply settlement
// records with a later sequence.
type SnapshotState struct {
	Sequence        int64  `json:"sequence"`
	ShareSupply     int64  `json:"share_supply"`
	LockPeriodSec   int64  `json:"lock_period_sec"`
	MaxTimeoutSec   int64  `json:"max_timeout_sec"`
	GasCompensation int64  `json:"gas_compensation"`
	StrictDeviation int64  `json:"strict_deviation"`
	EmergencyNavMin int64  `json:"emergency_nav_min"`
	EmergencyNavMax int64  `json:"emergency_nav_max"`
	NextOrderID     uint64 `json:"next_order_id"`

	Orders  []SnapshotOrder         `json:"orders"`
	Assets  map[uint8]SnapshotAsset `json:"assets"`
	Brokers []string                `json:"brokers"`
}

// SnapshotOrder is the wire form of a pending order.
type SnapshotOrder struct {
	OrderID   uint64 `json:"order_id"`
	Account   string `json:"account"`
	AssetID   uint8  `json:"asset_id"`
	Amount    int64  `json:"amount"`
	Direction int32  `json:"direction"`
	MinOut    int64  `json:"min_out"`
	PlacedAt  int64  `json:"placed_at"` // unix seconds
}

// SnapshotAsset is the wire form of one asset's ledger entry and funding state.
type SnapshotAsset struct {
	SpotLiquidity     int64 `json:"spot_liquidity"`
	Credit            int64 `json:"credit"`
	CollectedFee      int64 `json:"collected_fee"`
	FundingIndex      int64 `json:"funding_index"`
	FundingLastUpdate int64 `json:"funding_last_update"` // unix seconds, zero if never accrued
}

// CreateSnapshotState captures the engine state under the engine mutex.
func (e *Engine) CreateSnapshotState() SnapshotState {
	e.mu.Lock()
	defer e.mu.Unlock()

	navMin, navMax := e.guard.EmergencyBounds()
	st := SnapshotState{
		Sequence:        e.sequence,
		ShareSupply:     e.shareSupply,
		LockPeriodSec:   int64(e.lockPeriod / time.Second),
		MaxTimeoutSec:   int64(e.maxOrderTimeout / time.Second),
		GasCompensation: e.gasCompensation,
		StrictDeviation: e.guard.StrictDeviation(),
		EmergencyNavMin: navMin,
		EmergencyNavMax: navMax,
		NextOrderID:     e.queue.NextID(),
		Assets:          make(map[uint8]SnapshotAsset),
		Brokers:         e.brokers.List(),
	}

	for _, o := range e.queue.List() {
		st.Orders = append(st.Orders, SnapshotOrder{
			OrderID:   o.OrderID,
			Account:   o.Account,
			AssetID:   uint8(o.AssetID),
			Amount:    o.Amount,
			Direction: int32(o.Direction),
			MinOut:    o.MinOut,
			PlacedAt:  o.PlacedAt.Unix(),
		})
	}

	fundingStates := e.funding.Snapshot()
	for id, entry := range e.ledger.Snapshot() {
		sa := SnapshotAsset{
			SpotLiquidity: entry.SpotLiquidity,
			Credit:        entry.Credit,
			CollectedFee:  entry.CollectedFee,
		}
		if fs, ok := fundingStates[id]; ok {
			sa.FundingIndex = fs.CumulativeIndex
			sa.FundingLastUpdate = fs.LastUpdate
		}
		st.Assets[uint8(id)] = sa
	}
	return st
}

// RestoreFromSnapshot loads a snapshot into a freshly constructed engine.
// Asset configuration is not part of the snapshot; the registry must be
// populated before restoring.
func (e *Engine) RestoreFromSnapshot(st SnapshotState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guard.SetStrictDeviation(st.StrictDeviation); err != nil {
		return err
	}
	if err := e.guard.SetEmergencyBounds(st.EmergencyNavMin, st.EmergencyNavMax); err != nil {
		return err
	}

	e.sequence = st.Sequence
	e.shareSupply = st.ShareSupply
	e.lockPeriod = time.Duration(st.LockPeriodSec) * time.Second
	e.maxOrderTimeout = time.Duration(st.MaxTimeoutSec) * time.Second
	e.gasCompensation = st.GasCompensation

	pending := make([]orders.LiquidityOrder, 0, len(st.Orders))
	for _, o := range st.Orders {
		pending = append(pending, orders.LiquidityOrder{
			OrderID:   o.OrderID,
			Account:   o.Account,
			AssetID:   registry.AssetID(o.AssetID),
			Amount:    o.Amount,
			Direction: orders.Direction(o.Direction),
			MinOut:    o.MinOut,
			PlacedAt:  time.Unix(o.PlacedAt, 0).UTC(),
		})
	}
	e.queue.Restore(st.NextOrderID, pending)

	for id, sa := range st.Assets {
		assetID := registry.AssetID(id)
		e.ledger.RestoreEntry(assetID, ledger.Entry{
			SpotLiquidity: sa.SpotLiquidity,
			Credit:        sa.Credit,
			CollectedFee:  sa.CollectedFee,
		})
		e.funding.RestoreState(assetID, funding.State{
			CumulativeIndex: sa.FundingIndex,
			LastUpdate:      sa.FundingLastUpdate,
		})
	}

	e.brokers.Restore(st.Brokers)

	if e.metrics != nil {
		e.metrics.RecordSequence.Set(float64(e.sequence))
		e.metrics.ShareSupply.Set(float64(e.shareSupply))
		e.metrics.PendingOrders.Set(float64(e.queue.Len()))
	}
	return nil
}
