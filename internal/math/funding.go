package math

// FundingAccrual computes the cumulative-index delta for one accrual window.
//
//	delta = (base + dynamic * utilization) * elapsed / interval
//
// base and dynamic are RateConfig-scaled per-interval rates, utilization is
// RateConfig-scaled, elapsed and interval are seconds. The result is a
// RateConfig-scaled index delta, floored; the index never over-advances.
func FundingAccrual(baseRate, dynamicRate, utilization, elapsedSeconds, intervalSeconds int64) int64 {
	if elapsedSeconds <= 0 || intervalSeconds <= 0 {
		return 0
	}

	rate := baseRate + MulRate(dynamicRate, utilization, RoundDown)
	if rate <= 0 {
		return 0
	}

	return MulDiv(rate, elapsedSeconds, intervalSeconds, RoundDown)
}

// FundingFee converts an accrued index span into a fee on an outstanding
// principal. Rounds up: carrying cost collection favors the pool.
func FundingFee(principal, indexDelta int64) int64 {
	if principal <= 0 || indexDelta <= 0 {
		return 0
	}
	return MulRate(principal, indexDelta, RoundUp)
}
