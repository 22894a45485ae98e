// Package funding accrues the per-asset cumulative funding index as a pure
// function of elapsed time and pool utilization.
package funding

import (
	"time"

	fpmath "PoolCore/internal/math"
	"PoolCore/internal/poolerr"
	"PoolCore/internal/registry"
)

// DefaultInterval is the funding interval the original system runs on.
const DefaultInterval = 8 * time.Hour

// State is the per-asset funding accumulator. The cumulative index is
// RateConfig-scaled and only ever advances.
type State struct {
	CumulativeIndex int64
	LastUpdate      int64 // unix seconds; zero until first accrual touch
}

// Engine owns funding state for every registered asset. Not internally
// synchronized; the settlement engine serializes access.
type Engine struct {
	registry *registry.Registry
	interval int64 // seconds per funding interval
	states   map[registry.AssetID]*State
}

func NewEngine(reg *registry.Registry, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		registry: reg,
		interval: int64(interval / time.Second),
		states:   make(map[registry.AssetID]*State),
	}
}

// Accrue advances the asset's cumulative index for the window since the
// last update, using the current ledger balances for utilization. Safe to
// call repeatedly: a second call at the same timestamp is a no-op. Returns
// the index delta applied.
func (e *Engine) Accrue(id registry.AssetID, now time.Time, spotLiquidity, credit int64) (int64, error) {
	asset, ok := e.registry.Get(id)
	if !ok {
		return 0, poolerr.Detail(poolerr.ErrUnknownAsset, "funding accrue id=%d", id)
	}

	st, ok := e.states[id]
	if !ok {
		st = &State{}
		e.states[id] = st
	}

	nowSec := now.Unix()
	if st.LastUpdate == 0 {
		// First touch anchors the clock without accruing.
		st.LastUpdate = nowSec
		return 0, nil
	}

	elapsed := nowSec - st.LastUpdate
	if elapsed <= 0 {
		return 0, nil
	}

	utilization := fpmath.Utilization(spotLiquidity, credit)
	delta := fpmath.FundingAccrual(
		asset.Funding.BaseRate,
		asset.Funding.DynamicRate,
		utilization,
		elapsed,
		e.interval,
	)

	st.CumulativeIndex += delta
	st.LastUpdate = nowSec
	return delta, nil
}

// State returns the current accumulator for an asset.
func (e *Engine) State(id registry.AssetID) (State, bool) {
	st, ok := e.states[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Interval returns the configured funding interval in seconds.
func (e *Engine) Interval() int64 {
	return e.interval
}

// SetInterval replaces the funding interval. Accrued indexes are
// unaffected; only future windows use the new pro-rating base.
func (e *Engine) SetInterval(interval time.Duration) error {
	if interval <= 0 {
		return poolerr.Detail(poolerr.ErrInvalidParams, "funding interval %v", interval)
	}
	e.interval = int64(interval / time.Second)
	return nil
}

// RestoreState directly sets an asset's accumulator (snapshot restore).
func (e *Engine) RestoreState(id registry.AssetID, st State) {
	copied := st
	e.states[id] = &copied
}

// Snapshot returns a copy of all funding state (snapshot creation).
func (e *Engine) Snapshot() map[registry.AssetID]State {
	result := make(map[registry.AssetID]State, len(e.states))
	for id, st := range e.states {
		result[id] = *st
	}
	return result
}
