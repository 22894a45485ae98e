package core

import (
	fpmath "PoolCore/internal/math"
	"PoolCore/internal/orders"
	"PoolCore/internal/registry"
)

// FeeStrategy prices liquidity fills. Utilization is RateConfig-scaled
// and reflects the asset's ledger entry after funding accrual.
type FeeStrategy interface {
	LiquidityFee(asset registry.Asset, amount int64, direction orders.Direction, utilization int64) int64
}

// FlatFeeStrategy charges baseRate plus dynamicRate weighted by current
// utilization. Fees round up so truncation always favors the pool.
type FlatFeeStrategy struct {
	BaseRate    int64 // RateConfig-scaled
	DynamicRate int64 // RateConfig-scaled, applied at full utilization
}

func (s FlatFeeStrategy) LiquidityFee(asset registry.Asset, amount int64, direction orders.Direction, utilization int64) int64 {
	rate := s.BaseRate + fpmath.MulRate(s.DynamicRate, utilization, fpmath.RoundDown)
	return fpmath.MulRate(amount, rate, fpmath.RoundUp)
}
