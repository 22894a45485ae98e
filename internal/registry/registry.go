// Package registry holds per-asset identity and configuration: flags,
// risk/fee parameters, and funding parameters. The registry is append-only
// for asset identity; decimals and stability classification never change
// after registration.
package registry

import (
	fpmath "PoolCore/internal/math"
	"PoolCore/internal/poolerr"
)

// AssetID is a dense small-integer asset identifier, assigned at
// registration and never reused.
type AssetID uint8

// MaxDecimals is the platform maximum token precision.
const MaxDecimals = 18

// MaxSymbolLen matches the original fixed-width symbol encoding.
const MaxSymbolLen = 32

// AssetFlags are the per-asset booleans read on every ledger and
// settlement operation. Mutated only through governance.
type AssetFlags struct {
	Tradable            bool
	Openable            bool
	Shortable           bool
	UseStableCollateral bool
	Enabled             bool
	Strict              bool // requires reference-oracle corroboration on fill
	Liquidatable        bool
}

// AssetParams is the per-asset risk/fee configuration. All rates are
// RateConfig-scaled fixed-point.
type AssetParams struct {
	InitialMarginRate     int64
	MaintenanceMarginRate int64
	PositionFeeRate       int64
	LiquidationFeeRate    int64
	MinProfitRate         int64
	MinProfitTime         int64 // seconds
	MaxLongPosition       int64 // AmountConfig-scaled notional cap
	MaxShortPosition      int64
	SpotWeight            int64 // weight in pool NAV; zero excludes the asset
	HalfSpread            int64 // execution price skew, RateConfig-scaled
}

// FundingParams configures the asset's funding index accrual.
// Rates are RateConfig-scaled per funding interval.
type FundingParams struct {
	BaseRate    int64
	DynamicRate int64
}

// Asset is the registered identity plus current configuration.
type Asset struct {
	ID        AssetID
	Symbol    string
	Decimals  uint8
	IsStable  bool
	Token     string // underlying token handle
	Synthetic string // paired synthetic debt-tracking token handle

	Flags   AssetFlags
	Params  AssetParams
	Funding FundingParams
}

// Registry is the asset configuration table. It is not internally
// synchronized: the settlement engine serializes all access, matching the
// single-writer model of the core.
type Registry struct {
	assets map[AssetID]*Asset
	order  []AssetID // registration order, for deterministic enumeration

	authorize func(actor string) bool // governance capability
}

func NewRegistry(authorize func(actor string) bool) *Registry {
	return &Registry{
		assets:    make(map[AssetID]*Asset),
		authorize: authorize,
	}
}

func (r *Registry) checkGovernance(actor string) error {
	if r.authorize == nil || !r.authorize(actor) {
		return poolerr.Detail(poolerr.ErrUnauthorized, "governance required, got %q", actor)
	}
	return nil
}

// AddAsset registers a new asset id. Identity fields are immutable once set.
func (r *Registry) AddAsset(actor string, id AssetID, symbol string, decimals uint8, isStable bool, token, synthetic string) error {
	if err := r.checkGovernance(actor); err != nil {
		return err
	}
	if _, exists := r.assets[id]; exists {
		return poolerr.Detail(poolerr.ErrDuplicateAsset, "id=%d", id)
	}
	if decimals > MaxDecimals {
		return poolerr.Detail(poolerr.ErrInvalidDecimals, "id=%d decimals=%d max=%d", id, decimals, MaxDecimals)
	}
	if symbol == "" || len(symbol) > MaxSymbolLen {
		return poolerr.Detail(poolerr.ErrInvalidParams, "symbol %q", symbol)
	}

	r.assets[id] = &Asset{
		ID:        id,
		Symbol:    symbol,
		Decimals:  decimals,
		IsStable:  isStable,
		Token:     token,
		Synthetic: synthetic,
	}
	r.order = append(r.order, id)
	return nil
}

// ValidateAssetParams checks rate ranges: rates non-negative and the
// maintenance margin rate never above the initial margin rate.
func ValidateAssetParams(p AssetParams) error {
	rates := []int64{
		p.InitialMarginRate, p.MaintenanceMarginRate,
		p.PositionFeeRate, p.LiquidationFeeRate,
		p.MinProfitRate, p.HalfSpread,
	}
	for _, rate := range rates {
		if rate < 0 || rate > fpmath.RateConfig.Scale {
			return poolerr.Detail(poolerr.ErrInvalidParams, "rate out of range: %d", rate)
		}
	}
	if p.MaintenanceMarginRate > p.InitialMarginRate {
		return poolerr.Detail(poolerr.ErrInvalidParams,
			"mmr %d > imr %d", p.MaintenanceMarginRate, p.InitialMarginRate)
	}
	if p.MinProfitTime < 0 || p.MaxLongPosition < 0 || p.MaxShortPosition < 0 || p.SpotWeight < 0 {
		return poolerr.Detail(poolerr.ErrInvalidParams, "negative parameter")
	}
	return nil
}

func (r *Registry) SetAssetParams(actor string, id AssetID, params AssetParams) error {
	if err := r.checkGovernance(actor); err != nil {
		return err
	}
	asset, ok := r.assets[id]
	if !ok {
		return poolerr.Detail(poolerr.ErrUnknownAsset, "id=%d", id)
	}
	if err := ValidateAssetParams(params); err != nil {
		return err
	}
	asset.Params = params
	return nil
}

func (r *Registry) SetAssetFlags(actor string, id AssetID, flags AssetFlags) error {
	if err := r.checkGovernance(actor); err != nil {
		return err
	}
	asset, ok := r.assets[id]
	if !ok {
		return poolerr.Detail(poolerr.ErrUnknownAsset, "id=%d", id)
	}
	asset.Flags = flags
	return nil
}

func (r *Registry) SetFundingParams(actor string, id AssetID, funding FundingParams) error {
	if err := r.checkGovernance(actor); err != nil {
		return err
	}
	asset, ok := r.assets[id]
	if !ok {
		return poolerr.Detail(poolerr.ErrUnknownAsset, "id=%d", id)
	}
	if funding.BaseRate < 0 || funding.DynamicRate < 0 {
		return poolerr.Detail(poolerr.ErrInvalidParams, "negative funding rate")
	}
	asset.Funding = funding
	return nil
}

// Get returns a copy of the asset configuration.
func (r *Registry) Get(id AssetID) (Asset, bool) {
	asset, ok := r.assets[id]
	if !ok {
		return Asset{}, false
	}
	return *asset, true
}

// All returns copies of every registered asset in registration order.
func (r *Registry) All() []Asset {
	result := make([]Asset, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.assets[id])
	}
	return result
}

func (r *Registry) Count() int {
	return len(r.assets)
}
