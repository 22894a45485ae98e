// Package core orchestrates order settlement: it validates timing and
// authorization, invokes the price guard, mutates the asset ledger,
// adjusts pool-share supply, and emits settlement records.
//
// The engine is the single serialization point of the pool. Every public
// mutation runs under one mutex and executes to completion: all validation
// and external collaborator calls happen before any ledger state is
// committed, so a failed operation leaves no partial effects.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"PoolCore/internal/broker"
	"PoolCore/internal/event"
	"PoolCore/internal/funding"
	"PoolCore/internal/guard"
	"PoolCore/internal/ledger"
	fpmath "PoolCore/internal/math"
	"PoolCore/internal/observability"
	"PoolCore/internal/orders"
	"PoolCore/internal/poolerr"
	"PoolCore/internal/registry"
)

// ShareToken mints and burns the pool's liquidity-share token. It is an
// external collaborator; the engine owns total-supply accounting.
type ShareToken interface {
	Mint(ctx context.Context, to string, amount int64) error
	Burn(ctx context.Context, from string, amount int64) error
}

// Output carries a settlement record to the persistence worker (blocking
// channel) and the outbound publisher (non-blocking, drop on full).
type Output struct {
	Envelope event.RecordEnvelope
}

// Config holds the engine's global scalars.
type Config struct {
	LockPeriod      time.Duration // min delay between placement and fill eligibility
	MaxOrderTimeout time.Duration // pending orders become cancellable by anyone after this

	// BrokerGasCompensation is a flat amount of the order's asset paid to
	// the filling broker out of the account's side of each fill. Zero
	// disables compensation.
	BrokerGasCompensation int64
}

// Engine is the settlement engine.
type Engine struct {
	mu sync.Mutex

	registry  *registry.Registry
	ledger    *ledger.Ledger
	funding   *funding.Engine
	guard     *guard.PriceGuard
	brokers   *broker.Registry
	queue     *orders.Queue
	validator *ledger.InvariantValidator
	fees      FeeStrategy
	shares    ShareToken

	shareSupply     int64
	lockPeriod      time.Duration
	maxOrderTimeout time.Duration
	gasCompensation int64
	sequence        int64

	clock func() time.Time

	persistChan    chan<- Output
	publishChan    chan<- Output
	projectionChan chan<- Output

	log     zerolog.Logger
	metrics *observability.Metrics
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Registry *registry.Registry
	Ledger   *ledger.Ledger
	Funding  *funding.Engine
	Guard    *guard.PriceGuard
	Brokers  *broker.Registry
	Queue    *orders.Queue
	Fees     FeeStrategy
	Shares   ShareToken

	// Clock overrides the engine clock; nil means time.Now. Tests drive
	// lock/timeout windows through it.
	Clock func() time.Time

	// Output channels may be nil; records are then dropped for that
	// consumer. Only PersistChan blocks.
	PersistChan    chan<- Output
	PublishChan    chan<- Output
	ProjectionChan chan<- Output

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

func NewEngine(cfg Config, deps Deps) *Engine {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	fees := deps.Fees
	if fees == nil {
		fees = FlatFeeStrategy{}
	}

	return &Engine{
		registry:        deps.Registry,
		ledger:          deps.Ledger,
		funding:         deps.Funding,
		guard:           deps.Guard,
		brokers:         deps.Brokers,
		queue:           deps.Queue,
		validator:       ledger.NewInvariantValidator(deps.Ledger),
		fees:            fees,
		shares:          deps.Shares,
		lockPeriod:      cfg.LockPeriod,
		maxOrderTimeout: cfg.MaxOrderTimeout,
		gasCompensation: cfg.BrokerGasCompensation,
		clock:           clock,
		persistChan:     deps.PersistChan,
		publishChan:     deps.PublishChan,
		projectionChan:  deps.ProjectionChan,
		log:             deps.Logger,
		metrics:         deps.Metrics,
	}
}

// --- Governance configuration ---

func (e *Engine) requireGovernance(actor string) error {
	if !e.brokers.IsGovernance(actor) {
		return poolerr.Detail(poolerr.ErrUnauthorized, "governance required, got %q", actor)
	}
	return nil
}

// SetLockPeriod updates the liquidity lock period. Governance only.
func (e *Engine) SetLockPeriod(actor string, d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireGovernance(actor); err != nil {
		return err
	}
	if d < 0 {
		return poolerr.Detail(poolerr.ErrInvalidParams, "lock period %v", d)
	}
	e.lockPeriod = d
	return nil
}

// SetMaxOrderTimeout updates the pending-order liveness bound. Governance only.
func (e *Engine) SetMaxOrderTimeout(actor string, d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireGovernance(actor); err != nil {
		return err
	}
	if d <= 0 {
		return poolerr.Detail(poolerr.ErrInvalidParams, "max order timeout %v", d)
	}
	e.maxOrderTimeout = d
	return nil
}

// SetEmergencyBounds updates the NAV-per-share halt band. Governance only.
func (e *Engine) SetEmergencyBounds(actor string, navMin, navMax int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireGovernance(actor); err != nil {
		return err
	}
	return e.guard.SetEmergencyBounds(navMin, navMax)
}

// SetFundingInterval updates the pro-rating base for funding accrual.
// Governance only.
func (e *Engine) SetFundingInterval(actor string, d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireGovernance(actor); err != nil {
		return err
	}
	return e.funding.SetInterval(d)
}

// SetBrokerGasCompensation updates the flat per-fill broker payout.
// Governance only.
func (e *Engine) SetBrokerGasCompensation(actor string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireGovernance(actor); err != nil {
		return err
	}
	if amount < 0 {
		return poolerr.Detail(poolerr.ErrInvalidParams, "gas compensation %d", amount)
	}
	e.gasCompensation = amount
	return nil
}

// SetStrictDeviation updates the strict-asset deviation bound. Governance only.
func (e *Engine) SetStrictDeviation(actor string, rate int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireGovernance(actor); err != nil {
		return err
	}
	return e.guard.SetStrictDeviation(rate)
}

// --- Record emission ---

func (e *Engine) emit(recordType event.RecordType, assetID registry.AssetID, orderID uint64, account string, payload interface{}) {
	e.sequence++
	envelope := event.RecordEnvelope{
		Sequence:   e.sequence,
		RecordType: recordType,
		AssetID:    assetID,
		OrderID:    orderID,
		Account:    account,
		Timestamp:  e.clock(),
		Payload:    payload,
	}

	output := Output{Envelope: envelope}

	// Persistence blocks: the engine stalls rather than lose a record.
	if e.persistChan != nil {
		e.persistChan <- output
	}

	// Publishing drops: keepers can rebuild from the settlement log.
	if e.publishChan != nil {
		select {
		case e.publishChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}

	// Projections drop too; they are rebuildable from the log.
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.Inc()
			}
		}
	}

	if e.metrics != nil {
		e.metrics.RecordSequence.Set(float64(e.sequence))
	}
}

func (e *Engine) observeAsset(id registry.AssetID) {
	if e.metrics == nil {
		return
	}
	asset, ok := e.registry.Get(id)
	if !ok {
		return
	}
	entry := e.ledger.Entry(id)
	e.metrics.SpotLiquidity.WithLabelValues(asset.Symbol).Set(float64(entry.SpotLiquidity))
	e.metrics.Credit.WithLabelValues(asset.Symbol).Set(float64(entry.Credit))
	e.metrics.CollectedFees.WithLabelValues(asset.Symbol).Set(float64(entry.CollectedFee))
	if st, ok := e.funding.State(id); ok {
		e.metrics.FundingIndex.WithLabelValues(asset.Symbol).Set(float64(st.CumulativeIndex))
	}
}

func (e *Engine) observeSettle(operation string, start time.Time) {
	if e.metrics != nil {
		e.metrics.SettleDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) rejectKind(err error) string {
	if kind, ok := poolerr.KindOf(err); ok {
		return kind.String()
	}
	return "internal"
}

// --- Read-side accessors (used by the query service) ---

// AssetInfo is the composite per-asset view.
type AssetInfo struct {
	Asset   registry.Asset
	Entry   ledger.Entry
	Funding funding.State
}

// GetAssetInfo returns the full configuration and financial state of an asset.
func (e *Engine) GetAssetInfo(id registry.AssetID) (AssetInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.registry.Get(id)
	if !ok {
		return AssetInfo{}, poolerr.Detail(poolerr.ErrUnknownAsset, "id=%d", id)
	}
	st, _ := e.funding.State(id)
	return AssetInfo{
		Asset:   asset,
		Entry:   e.ledger.Entry(id),
		Funding: st,
	}, nil
}

// ListAssets returns the composite view for every registered asset.
func (e *Engine) ListAssets() []AssetInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	assets := e.registry.All()
	result := make([]AssetInfo, 0, len(assets))
	for _, asset := range assets {
		st, _ := e.funding.State(asset.ID)
		result = append(result, AssetInfo{
			Asset:   asset,
			Entry:   e.ledger.Entry(asset.ID),
			Funding: st,
		})
	}
	return result
}

// PoolState is the pool-level view.
type PoolState struct {
	ShareSupply     int64
	PendingOrders   int
	NextOrderID     uint64
	LockPeriod      time.Duration
	MaxOrderTimeout time.Duration
	GasCompensation int64
	EmergencyNavMin int64
	EmergencyNavMax int64
	RecordSequence  int64
}

// GetPoolState returns the pool-level scalars.
func (e *Engine) GetPoolState() PoolState {
	e.mu.Lock()
	defer e.mu.Unlock()

	navMin, navMax := e.guard.EmergencyBounds()
	return PoolState{
		ShareSupply:     e.shareSupply,
		PendingOrders:   e.queue.Len(),
		NextOrderID:     e.queue.NextID(),
		LockPeriod:      e.lockPeriod,
		MaxOrderTimeout: e.maxOrderTimeout,
		GasCompensation: e.gasCompensation,
		EmergencyNavMin: navMin,
		EmergencyNavMax: navMax,
		RecordSequence:  e.sequence,
	}
}

// PendingOrders returns all pending orders sorted by id.
func (e *Engine) PendingOrders() []orders.LiquidityOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.List()
}

// ShareSupply returns the current pool share supply.
func (e *Engine) ShareSupply() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shareSupply
}

// Sequence returns the last settlement record sequence assigned.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// ComputeNav values the pool at the supplied mark prices.
func (e *Engine) ComputeNav(markPrices map[registry.AssetID]int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nav(markPrices)
}

// nav sums spotWeight × (spotLiquidity + credit − collectedFee) × price
// over weighted assets. Callers hold the engine mutex.
func (e *Engine) nav(markPrices map[registry.AssetID]int64) (int64, error) {
	var total int64
	for _, asset := range e.registry.All() {
		if asset.Params.SpotWeight == 0 {
			continue
		}
		entry := e.ledger.Entry(asset.ID)
		holding := entry.SpotLiquidity + entry.Credit - entry.CollectedFee
		if holding == 0 {
			continue
		}
		price, ok := markPrices[asset.ID]
		if !ok || price <= 0 {
			return 0, poolerr.Detail(poolerr.ErrInvalidPrice, "missing mark price for %s", asset.Symbol)
		}
		total += asset.Params.SpotWeight * fpmath.Value(holding, price)
	}
	return total, nil
}

// navPerShare values one share; a fresh pool is priced at par so seeding
// fills pass the emergency band.
func (e *Engine) navPerShare(nav int64) int64 {
	if e.shareSupply == 0 {
		return fpmath.PriceConfig.Scale
	}
	return fpmath.MulDiv(nav, fpmath.ValueConfig.Scale, e.shareSupply, fpmath.RoundDown)
}
