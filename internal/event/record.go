// Package event defines the settlement records the engine emits for
// persistence and outbound publication. Records are the externally
// observable trace of every terminal ledger mutation; a fill record is
// how callers recover the share amount a fill produced.
package event

import (
	"time"

	"PoolCore/internal/registry"
)

// RecordType discriminator for settlement records
type RecordType int32

const (
	RecordTypeUnknown RecordType = iota
	RecordTypeOrderPlaced
	RecordTypeOrderFilled
	RecordTypeOrderCancelled
	RecordTypeAssetBorrowed
	RecordTypeAssetRepaid
)

func (rt RecordType) String() string {
	switch rt {
	case RecordTypeOrderPlaced:
		return "OrderPlaced"
	case RecordTypeOrderFilled:
		return "OrderFilled"
	case RecordTypeOrderCancelled:
		return "OrderCancelled"
	case RecordTypeAssetBorrowed:
		return "AssetBorrowed"
	case RecordTypeAssetRepaid:
		return "AssetRepaid"
	default:
		return "Unknown"
	}
}

// RecordEnvelope wraps every record in the settlement log.
type RecordEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	RecordType RecordType

	AssetID registry.AssetID

	// Order context; zero for borrow/repay records
	OrderID uint64

	Account string

	// Engine-observed operation timestamp
	Timestamp time.Time

	// Record-specific payload, JSON-encoded for storage and publishing
	Payload interface{}
}

// OrderPlaced is emitted when an order enters the pending set.
type OrderPlaced struct {
	OrderID   uint64 `json:"order_id"`
	Account   string `json:"account"`
	AssetID   uint8  `json:"asset_id"`
	Amount    int64  `json:"amount"`
	Direction string `json:"direction"`
	MinOut    int64  `json:"min_out"`
	PlacedAt  int64  `json:"placed_at"` // unix seconds
}

// OrderFilled is emitted on successful broker settlement.
type OrderFilled struct {
	OrderID         uint64 `json:"order_id"`
	Account         string `json:"account"`
	AssetID         uint8  `json:"asset_id"`
	Direction       string `json:"direction"`
	Amount          int64  `json:"amount"`
	Fee             int64  `json:"fee"`
	Price           int64  `json:"price"`
	SharesMinted    int64  `json:"shares_minted"` // negative when shares were burned
	AmountOut       int64  `json:"amount_out"`    // asset paid out on remove fills
	GasCompensation int64  `json:"gas_compensation,omitempty"`
	NavBefore       int64  `json:"nav_before"`
	Broker          string `json:"broker"`
}

// OrderCancelled is emitted when an order leaves the pending set unfilled.
type OrderCancelled struct {
	OrderID      uint64 `json:"order_id"`
	Account      string `json:"account"`
	AssetID      uint8  `json:"asset_id"`
	Caller       string `json:"caller"`
	AfterTimeout bool   `json:"after_timeout"`
}

// AssetBorrowed is emitted for every borrow against pool liquidity.
type AssetBorrowed struct {
	AssetID   uint8  `json:"asset_id"`
	Receiver  string `json:"receiver"`
	Principal int64  `json:"principal"`
	Fee       int64  `json:"fee"`
}

// AssetRepaid is emitted for every repayment, including bad-debt writeoffs.
type AssetRepaid struct {
	AssetID   uint8  `json:"asset_id"`
	Payer     string `json:"payer"`
	Principal int64  `json:"principal"`
	Fee       int64  `json:"fee"`
	BadDebt   int64  `json:"bad_debt"`
}
