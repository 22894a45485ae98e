package query

import "encoding/json"

// AssetInfoResponse is the composite per-asset view for API queries.
type AssetInfoResponse struct {
	AssetID   uint8  `json:"asset_id"`
	Symbol    string `json:"symbol"`
	Decimals  uint8  `json:"decimals"`
	IsStable  bool   `json:"is_stable"`
	Token     string `json:"token"`
	Synthetic string `json:"synthetic,omitempty"`

	// Flags
	Tradable bool `json:"tradable"`
	Openable bool `json:"openable"`
	Enabled  bool `json:"enabled"`
	Strict   bool `json:"strict"`

	// Ledger state
	SpotLiquidity int64 `json:"spot_liquidity"`
	Credit        int64 `json:"credit"`
	CollectedFee  int64 `json:"collected_fee"`
	Utilization   int64 `json:"utilization"` // rate-scaled

	// Funding state
	FundingIndex      int64 `json:"funding_index"`
	FundingLastUpdate int64 `json:"funding_last_update"` // unix seconds

	SpotWeight int64 `json:"spot_weight"`
	HalfSpread int64 `json:"half_spread"`
}

// PoolStateResponse is the pool-level view for API queries.
type PoolStateResponse struct {
	ShareSupply     int64    `json:"share_supply"`
	PendingOrders   int      `json:"pending_orders"`
	NextOrderID     uint64   `json:"next_order_id"`
	LockPeriodSec   int64    `json:"lock_period_sec"`
	MaxTimeoutSec   int64    `json:"max_timeout_sec"`
	GasCompensation int64    `json:"gas_compensation"`
	EmergencyNavMin int64    `json:"emergency_nav_min"`
	EmergencyNavMax int64    `json:"emergency_nav_max"`
	RecordSequence  int64    `json:"record_sequence"`
	Brokers         []string `json:"brokers"`
}

// OrderResponse is a pending order for API queries.
type OrderResponse struct {
	OrderID   uint64 `json:"order_id"`
	Account   string `json:"account"`
	AssetID   uint8  `json:"asset_id"`
	Amount    int64  `json:"amount"`
	Direction string `json:"direction"`
	MinOut    int64  `json:"min_out"`
	PlacedAt  int64  `json:"placed_at"` // unix seconds
}

// SettlementRecordResponse is one settlement-log row for API queries.
type SettlementRecordResponse struct {
	Sequence   int64           `json:"sequence"`
	RecordType string          `json:"record_type"`
	AssetID    int16           `json:"asset_id"`
	OrderID    int64           `json:"order_id,omitempty"`
	Account    string          `json:"account"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt int64           `json:"recorded_at"` // unix seconds
}

// HistoryFilter narrows settlement-log queries. Nil fields match all.
type HistoryFilter struct {
	Account    *string
	AssetID    *int16
	RecordType *string
	// Cursor pagination: return records with sequence < AfterSequence.
	AfterSequence *int64
	Limit         int
}
