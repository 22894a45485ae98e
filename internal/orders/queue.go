// Package orders is the append-only store of pending liquidity orders.
// Order ids are assigned in strict placement order and never reused, even
// after cancellation; removal is the only mutation after creation, which
// enforces at-most-once settlement.
package orders

import (
	"sort"
	"time"

	"PoolCore/internal/poolerr"
	"PoolCore/internal/registry"
)

// Direction of a liquidity order.
type Direction int32

const (
	DirectionAdd Direction = iota
	DirectionRemove
)

func (d Direction) String() string {
	switch d {
	case DirectionAdd:
		return "add"
	case DirectionRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// LiquidityOrder is immutable after placement.
type LiquidityOrder struct {
	OrderID   uint64
	Account   string
	AssetID   registry.AssetID
	Amount    int64 // AmountConfig-scaled: asset amount for add, shares for remove
	Direction Direction
	MinOut    int64 // account-chosen minimum acceptable output
	PlacedAt  time.Time
}

// Queue holds pending orders keyed by id. Flag validation happens in the
// settlement engine before placement; the queue itself depends on nothing.
// Not internally synchronized; the engine serializes access.
type Queue struct {
	nextID  uint64
	pending map[uint64]*LiquidityOrder
}

func NewQueue() *Queue {
	return &Queue{
		nextID:  1,
		pending: make(map[uint64]*LiquidityOrder),
	}
}

// Place stores a validated order and returns its id. Ids are strictly
// increasing across the queue's lifetime.
func (q *Queue) Place(account string, assetID registry.AssetID, amount int64, direction Direction, minOut int64, now time.Time) uint64 {
	id := q.nextID
	q.nextID++

	q.pending[id] = &LiquidityOrder{
		OrderID:   id,
		Account:   account,
		AssetID:   assetID,
		Amount:    amount,
		Direction: direction,
		MinOut:    minOut,
		PlacedAt:  now,
	}
	return id
}

// Peek returns a copy of a pending order.
func (q *Queue) Peek(orderID uint64) (LiquidityOrder, error) {
	order, ok := q.pending[orderID]
	if !ok {
		return LiquidityOrder{}, poolerr.Detail(poolerr.ErrOrderNotFound, "id=%d", orderID)
	}
	return *order, nil
}

// Remove deletes a pending order. Failing on an absent id is what makes
// settlement at-most-once: fill and cancel both remove, and only the first
// caller succeeds.
func (q *Queue) Remove(orderID uint64) error {
	if _, ok := q.pending[orderID]; !ok {
		return poolerr.Detail(poolerr.ErrOrderNotFound, "id=%d", orderID)
	}
	delete(q.pending, orderID)
	return nil
}

// List returns copies of all pending orders sorted by id, for broker
// enumeration and snapshots.
func (q *Queue) List() []LiquidityOrder {
	result := make([]LiquidityOrder, 0, len(q.pending))
	for _, order := range q.pending {
		result = append(result, *order)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OrderID < result[j].OrderID
	})
	return result
}

// Len returns the number of pending orders.
func (q *Queue) Len() int {
	return len(q.pending)
}

// NextID returns the next id to be assigned.
func (q *Queue) NextID() uint64 {
	return q.nextID
}

// Load inserts a single order during settlement-log replay, keeping
// nextID ahead of every id seen.
func (q *Queue) Load(order LiquidityOrder) {
	copied := order
	q.pending[order.OrderID] = &copied
	if order.OrderID >= q.nextID {
		q.nextID = order.OrderID + 1
	}
}

// Restore replaces queue contents (snapshot restore). nextID must be
// at least one past every restored order id.
func (q *Queue) Restore(nextID uint64, pending []LiquidityOrder) {
	q.nextID = nextID
	q.pending = make(map[uint64]*LiquidityOrder, len(pending))
	for _, order := range pending {
		copied := order
		q.pending[order.OrderID] = &copied
		if order.OrderID >= q.nextID {
			q.nextID = order.OrderID + 1
		}
	}
}
