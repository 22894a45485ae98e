// Package guard validates externally supplied execution prices against a
// reference price and validates the pool's NAV per share against emergency
// bounds, the circuit breakers in front of every settlement.
package guard

import (
	fpmath "PoolCore/internal/math"
	"PoolCore/internal/poolerr"
	"PoolCore/internal/registry"
)

// PriceGuard holds the governance-configured guard parameters. Setters are
// called through the settlement engine, which performs authorization.
type PriceGuard struct {
	registry *registry.Registry

	strictDeviation int64 // max |p−ref|/ref for strict assets, RateConfig-scaled
	emergencyNavMin int64 // PriceConfig-scaled NAV-per-share band
	emergencyNavMax int64
}

func NewPriceGuard(reg *registry.Registry, strictDeviation, navMin, navMax int64) *PriceGuard {
	return &PriceGuard{
		registry:        reg,
		strictDeviation: strictDeviation,
		emergencyNavMin: navMin,
		emergencyNavMax: navMax,
	}
}

// SetStrictDeviation updates the deviation bound for strict assets.
func (g *PriceGuard) SetStrictDeviation(rate int64) error {
	if rate < 0 || rate > fpmath.RateConfig.Scale {
		return poolerr.Detail(poolerr.ErrInvalidParams, "strict deviation %d", rate)
	}
	g.strictDeviation = rate
	return nil
}

// SetEmergencyBounds updates the NAV-per-share halt band.
func (g *PriceGuard) SetEmergencyBounds(navMin, navMax int64) error {
	if navMin < 0 || navMax < navMin {
		return poolerr.Detail(poolerr.ErrInvalidParams, "emergency bounds [%d, %d]", navMin, navMax)
	}
	g.emergencyNavMin = navMin
	g.emergencyNavMax = navMax
	return nil
}

// EmergencyBounds returns the current halt band.
func (g *PriceGuard) EmergencyBounds() (int64, int64) {
	return g.emergencyNavMin, g.emergencyNavMax
}

// StrictDeviation returns the current deviation bound.
func (g *PriceGuard) StrictDeviation() int64 {
	return g.strictDeviation
}

// CheckPrice validates a proposed execution price. Assets flagged strict
// additionally require the proposal to sit within the deviation bound of
// the independently sourced reference price.
func (g *PriceGuard) CheckPrice(id registry.AssetID, proposedPrice, referencePrice int64) error {
	asset, ok := g.registry.Get(id)
	if !ok {
		return poolerr.Detail(poolerr.ErrUnknownAsset, "price check id=%d", id)
	}
	if proposedPrice <= 0 {
		return poolerr.Detail(poolerr.ErrInvalidPrice, "proposed=%d", proposedPrice)
	}
	if !asset.Flags.Strict {
		return nil
	}
	if referencePrice <= 0 {
		return poolerr.Detail(poolerr.ErrInvalidPrice, "strict asset %s reference=%d", asset.Symbol, referencePrice)
	}

	diff := proposedPrice - referencePrice
	if diff < 0 {
		diff = -diff
	}

	// Exact comparison: |p − ref| / ref > bound  ⇔  |p − ref| × scale > bound × ref
	if fpmath.CmpProducts(diff, fpmath.RateConfig.Scale, g.strictDeviation, referencePrice) > 0 {
		return poolerr.Detail(poolerr.ErrReferenceOracleDeviation,
			"%s proposed=%d reference=%d bound=%d", asset.Symbol, proposedPrice, referencePrice, g.strictDeviation)
	}
	return nil
}

// CheckEmergencyBounds halts settlement when NAV per share falls outside
// the governance-configured band, an implausible pool valuation. A zero
// upper bound means no band is configured.
func (g *PriceGuard) CheckEmergencyBounds(navPerShare int64) error {
	if g.emergencyNavMax == 0 {
		return nil
	}
	if navPerShare < g.emergencyNavMin || navPerShare > g.emergencyNavMax {
		return poolerr.Detail(poolerr.ErrEmergencyHalt,
			"navPerShare=%d bounds=[%d, %d]", navPerShare, g.emergencyNavMin, g.emergencyNavMax)
	}
	return nil
}

// SkewPrice applies the asset's half-spread to an execution price, always
// in the pool's favor: value added to the pool is marked down, value taken
// out is marked up.
func (g *PriceGuard) SkewPrice(id registry.AssetID, price int64, poolReceives bool) int64 {
	asset, ok := g.registry.Get(id)
	if !ok || asset.Params.HalfSpread == 0 {
		return price
	}
	spread := fpmath.MulRate(price, asset.Params.HalfSpread, fpmath.RoundUp)
	if poolReceives {
		return price - spread
	}
	return price + spread
}
