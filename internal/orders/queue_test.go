package orders_test

import (
	"errors"
	"testing"
	"time"

	"PoolCore/internal/orders"
	"PoolCore/internal/poolerr"
)

func TestPlace_IDsStrictlyIncreasing(t *testing.T) {
	q := orders.NewQueue()
	now := time.Now()

	first := q.Place("alice", 1, 100, orders.DirectionAdd, 0, now)
	second := q.Place("bob", 1, 200, orders.DirectionRemove, 0, now)
	third := q.Place("alice", 2, 300, orders.DirectionAdd, 0, now)

	if first != 1 || second != 2 || third != 3 {
		t.Errorf("ids: got %d,%d,%d, want 1,2,3", first, second, third)
	}
	if q.NextID() != 4 {
		t.Errorf("next id: got %d, want 4", q.NextID())
	}
}

func TestPlace_IDsNotReusedAfterRemoval(t *testing.T) {
	q := orders.NewQueue()
	id := q.Place("alice", 1, 100, orders.DirectionAdd, 0, time.Now())
	if err := q.Remove(id); err != nil {
		t.Fatalf("remove: %v", err)
	}

	next := q.Place("alice", 1, 100, orders.DirectionAdd, 0, time.Now())
	if next != id+1 {
		t.Errorf("got id %d, want %d", next, id+1)
	}
}

func TestPeek_ReturnsCopy(t *testing.T) {
	q := orders.NewQueue()
	placed := time.Unix(1_700_000_000, 0)
	id := q.Place("alice", 3, 500, orders.DirectionRemove, 450, placed)

	order, err := q.Peek(id)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if order.Account != "alice" || order.AssetID != 3 || order.Amount != 500 ||
		order.Direction != orders.DirectionRemove || order.MinOut != 450 ||
		!order.PlacedAt.Equal(placed) {
		t.Errorf("got %+v", order)
	}

	order.Amount = 0
	fresh, _ := q.Peek(id)
	if fresh.Amount != 500 {
		t.Error("mutating a peeked copy must not change the stored order")
	}
}

func TestRemove_AtMostOnce(t *testing.T) {
	q := orders.NewQueue()
	id := q.Place("alice", 1, 100, orders.DirectionAdd, 0, time.Now())

	if err := q.Remove(id); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	err := q.Remove(id)
	if !errors.Is(err, poolerr.ErrOrderNotFound) {
		t.Errorf("second remove: got %v, want ErrOrderNotFound", err)
	}
}

func TestPeek_UnknownOrder(t *testing.T) {
	q := orders.NewQueue()
	_, err := q.Peek(99)
	if !errors.Is(err, poolerr.ErrOrderNotFound) {
		t.Errorf("got %v, want ErrOrderNotFound", err)
	}
}

func TestList_SortedByID(t *testing.T) {
	q := orders.NewQueue()
	now := time.Now()
	q.Place("c", 1, 1, orders.DirectionAdd, 0, now)
	q.Place("a", 1, 2, orders.DirectionAdd, 0, now)
	q.Place("b", 1, 3, orders.DirectionAdd, 0, now)

	list := q.List()
	if len(list) != 3 {
		t.Fatalf("got %d orders, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].OrderID <= list[i-1].OrderID {
			t.Errorf("list not sorted at %d: %d then %d", i, list[i-1].OrderID, list[i].OrderID)
		}
	}
}

func TestLoad_AdvancesNextID(t *testing.T) {
	q := orders.NewQueue()
	q.Load(orders.LiquidityOrder{OrderID: 7, Account: "alice", AssetID: 1, Amount: 100})

	if q.Len() != 1 {
		t.Fatalf("len: got %d, want 1", q.Len())
	}
	if q.NextID() != 8 {
		t.Errorf("next id: got %d, want 8", q.NextID())
	}

	// A fresh placement must not collide with the loaded id.
	id := q.Place("bob", 1, 50, orders.DirectionAdd, 0, time.Now())
	if id != 8 {
		t.Errorf("post-load placement: got id %d, want 8", id)
	}
}

func TestRestore(t *testing.T) {
	q := orders.NewQueue()
	q.Place("stale", 1, 1, orders.DirectionAdd, 0, time.Now())

	q.Restore(10, []orders.LiquidityOrder{
		{OrderID: 4, Account: "alice", AssetID: 1, Amount: 100},
		{OrderID: 9, Account: "bob", AssetID: 2, Amount: 200},
	})

	if q.Len() != 2 {
		t.Fatalf("len: got %d, want 2", q.Len())
	}
	if _, err := q.Peek(1); !errors.Is(err, poolerr.ErrOrderNotFound) {
		t.Error("restore should drop prior contents")
	}
	if q.NextID() != 10 {
		t.Errorf("next id: got %d, want 10", q.NextID())
	}
}

func TestDirectionString(t *testing.T) {
	if orders.DirectionAdd.String() != "add" || orders.DirectionRemove.String() != "remove" {
		t.Errorf("got %q/%q", orders.DirectionAdd.String(), orders.DirectionRemove.String())
	}
}
