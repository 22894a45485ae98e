package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"PoolCore/internal/core"
	"PoolCore/internal/registry"
)

// Instruction is a typed broker instruction ready for the engine.
type Instruction interface {
	instruction()
}

// FillInstruction asks the engine to settle a pending order at the
// broker's attested prices.
type FillInstruction struct {
	Broker  string
	OrderID uint64
	Prices  core.FillPrices
}

// CancelInstruction asks the engine to cancel a pending order.
type CancelInstruction struct {
	Caller  string
	OrderID uint64
}

// FundingTick asks the engine to accrue funding for one asset.
type FundingTick struct {
	AssetID registry.AssetID
}

func (FillInstruction) instruction()   {}
func (CancelInstruction) instruction() {}
func (FundingTick) instruction()       {}

// --- JSON wire formats ---
// Field names use snake_case to match the broker keepers.

type fillJSON struct {
	Broker         string          `json:"broker"`
	OrderID        uint64          `json:"order_id"`
	AssetPrice     int64           `json:"asset_price"`
	ReferencePrice int64           `json:"reference_price"`
	MarkPrices     map[uint8]int64 `json:"mark_prices,omitempty"`
}

type cancelJSON struct {
	Caller  string `json:"caller"`
	OrderID uint64 `json:"order_id"`
}

type fundingJSON struct {
	AssetID uint8 `json:"asset_id"`
}

// ParseInstruction converts a raw NATS message into a typed instruction
// based on its subject.
func ParseInstruction(raw RawInstruction) (Instruction, error) {
	switch {
	case strings.HasPrefix(raw.Subject, SubjectFillRequests):
		return parseFill(raw.Data)
	case strings.HasPrefix(raw.Subject, SubjectCancelRequests):
		return parseCancel(raw.Data)
	case strings.HasPrefix(raw.Subject, SubjectFundingTicks):
		return parseFunding(raw.Data)
	default:
		return nil, fmt.Errorf("unknown instruction subject %q", raw.Subject)
	}
}

func parseFill(data []byte) (FillInstruction, error) {
	var j fillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return FillInstruction{}, fmt.Errorf("parse fill: %w", err)
	}
	if j.Broker == "" {
		return FillInstruction{}, fmt.Errorf("parse fill: missing broker")
	}
	if j.OrderID == 0 {
		return FillInstruction{}, fmt.Errorf("parse fill: missing order_id")
	}
	if j.AssetPrice <= 0 {
		return FillInstruction{}, fmt.Errorf("parse fill: asset_price %d", j.AssetPrice)
	}

	mark := make(map[registry.AssetID]int64, len(j.MarkPrices))
	for id, price := range j.MarkPrices {
		mark[registry.AssetID(id)] = price
	}
	return FillInstruction{
		Broker:  j.Broker,
		OrderID: j.OrderID,
		Prices: core.FillPrices{
			AssetPrice:     j.AssetPrice,
			ReferencePrice: j.ReferencePrice,
			MarkPrices:     mark,
		},
	}, nil
}

func parseCancel(data []byte) (CancelInstruction, error) {
	var j cancelJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return CancelInstruction{}, fmt.Errorf("parse cancel: %w", err)
	}
	if j.Caller == "" {
		return CancelInstruction{}, fmt.Errorf("parse cancel: missing caller")
	}
	if j.OrderID == 0 {
		return CancelInstruction{}, fmt.Errorf("parse cancel: missing order_id")
	}
	return CancelInstruction{Caller: j.Caller, OrderID: j.OrderID}, nil
}

func parseFunding(data []byte) (FundingTick, error) {
	var j fundingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return FundingTick{}, fmt.Errorf("parse funding tick: %w", err)
	}
	return FundingTick{AssetID: registry.AssetID(j.AssetID)}, nil
}
