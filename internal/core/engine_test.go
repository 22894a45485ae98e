package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"PoolCore/internal/broker"
	"PoolCore/internal/core"
	"PoolCore/internal/funding"
	"PoolCore/internal/guard"
	"PoolCore/internal/ledger"
	"PoolCore/internal/orders"
	"PoolCore/internal/poolerr"
	"PoolCore/internal/registry"
)

const (
	governance = "gov-addr"
	brokerAddr = "broker-1"
	alice      = "alice"
	bob        = "bob"

	// Fixed-point scales used throughout: amounts and prices at 1e9.
	unit  = int64(1_000_000_000)
	price = 2 * unit // 2.0 quote per asset unit
)

// ============================================================================
// Fakes
// ============================================================================

type tokenOp struct {
	Account string
	Amount  int64
}

type fakeShareToken struct {
	minted   []tokenOp
	burned   []tokenOp
	failNext bool
}

func (f *fakeShareToken) Mint(ctx context.Context, to string, amount int64) error {
	if f.failNext {
		f.failNext = false
		return errors.New("mint rejected")
	}
	f.minted = append(f.minted, tokenOp{Account: to, Amount: amount})
	return nil
}

func (f *fakeShareToken) Burn(ctx context.Context, from string, amount int64) error {
	if f.failNext {
		f.failNext = false
		return errors.New("burn rejected")
	}
	f.burned = append(f.burned, tokenOp{Account: from, Amount: amount})
	return nil
}

type transferOp struct {
	Token  string
	To     string
	Amount int64
}

type fakeTransferor struct {
	transfers []transferOp
}

func (f *fakeTransferor) Transfer(ctx context.Context, token, to string, amount int64) error {
	f.transfers = append(f.transfers, transferOp{Token: token, To: to, Amount: amount})
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// ============================================================================
// Fixture
// ============================================================================

type fixture struct {
	engine  *core.Engine
	clock   *fakeClock
	shares  *fakeShareToken
	tokens  *fakeTransferor
	persist chan core.Output
}

func newFixture(t *testing.T, fees core.FeeStrategy) *fixture {
	t.Helper()

	gov := func(actor string) bool { return actor == governance }
	reg := registry.NewRegistry(gov)
	brokers := broker.NewRegistry(gov)
	fundingEngine := funding.NewEngine(reg, time.Hour)
	tokens := &fakeTransferor{}
	shares := &fakeShareToken{}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	persist := make(chan core.Output, 256)

	engine := core.NewEngine(
		core.Config{
			LockPeriod:      time.Minute,
			MaxOrderTimeout: time.Hour,
		},
		core.Deps{
			Registry:    reg,
			Ledger:      ledger.NewLedger(reg, fundingEngine, tokens),
			Funding:     fundingEngine,
			Guard:       guard.NewPriceGuard(reg, 1_000, 0, 0),
			Brokers:     brokers,
			Queue:       orders.NewQueue(),
			Fees:        fees,
			Shares:      shares,
			Clock:       clock.Now,
			PersistChan: persist,
			Logger:      zerolog.Nop(),
		},
	)

	if err := engine.AddAsset(governance, 1, "WBTC", 9, false, "0xbtc", "0xsbtc"); err != nil {
		t.Fatalf("add asset: %v", err)
	}
	if err := engine.SetAssetFlags(governance, 1, registry.AssetFlags{
		Enabled:  true,
		Tradable: true,
		Openable: true,
	}); err != nil {
		t.Fatalf("set flags: %v", err)
	}
	if err := engine.SetAssetParams(governance, 1, registry.AssetParams{SpotWeight: 1}); err != nil {
		t.Fatalf("set params: %v", err)
	}
	if err := engine.AddBroker(governance, brokerAddr); err != nil {
		t.Fatalf("add broker: %v", err)
	}

	return &fixture{
		engine:  engine,
		clock:   clock,
		shares:  shares,
		tokens:  tokens,
		persist: persist,
	}
}

func (f *fixture) placeAndUnlock(t *testing.T, account string, amount int64, dir orders.Direction, minOut int64) uint64 {
	t.Helper()
	id, err := f.engine.PlaceLiquidityOrder(account, 1, amount, dir, minOut)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	f.clock.Advance(2 * time.Minute)
	return id
}

func (f *fixture) fill(t *testing.T, orderID uint64) core.FillResult {
	t.Helper()
	result, err := f.engine.FillLiquidityOrder(context.Background(), brokerAddr, orderID, core.FillPrices{
		AssetPrice:     price,
		ReferencePrice: price,
	})
	if err != nil {
		t.Fatalf("fill %d: %v", orderID, err)
	}
	return result
}

func (f *fixture) drainRecords() []core.Output {
	var out []core.Output
	for {
		select {
		case rec := <-f.persist:
			out = append(out, rec)
		default:
			return out
		}
	}
}

// ============================================================================
// Test: placement
// ============================================================================

func TestPlaceLiquidityOrder(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.engine.PlaceLiquidityOrder(alice, 1, 100*unit, orders.DirectionAdd, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id != 1 {
		t.Errorf("order id: got %d, want 1", id)
	}

	pending := f.engine.PendingOrders()
	if len(pending) != 1 {
		t.Fatalf("pending: got %d, want 1", len(pending))
	}
	if pending[0].Account != alice || pending[0].Amount != 100*unit {
		t.Errorf("got %+v", pending[0])
	}
}

func TestPlaceLiquidityOrder_Validation(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.engine.PlaceLiquidityOrder(alice, 9, unit, orders.DirectionAdd, 0); !errors.Is(err, poolerr.ErrUnknownAsset) {
		t.Errorf("unknown asset: got %v", err)
	}
	if _, err := f.engine.PlaceLiquidityOrder(alice, 1, 0, orders.DirectionAdd, 0); !errors.Is(err, poolerr.ErrInvalidParams) {
		t.Errorf("zero amount: got %v", err)
	}
	if _, err := f.engine.PlaceLiquidityOrder(alice, 1, unit, orders.DirectionAdd, -1); !errors.Is(err, poolerr.ErrInvalidParams) {
		t.Errorf("negative minOut: got %v", err)
	}

	if err := f.engine.SetAssetFlags(governance, 1, registry.AssetFlags{Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.PlaceLiquidityOrder(alice, 1, unit, orders.DirectionAdd, 0); !errors.Is(err, poolerr.ErrAssetNotTradable) {
		t.Errorf("not tradable: got %v", err)
	}

	if err := f.engine.SetAssetFlags(governance, 1, registry.AssetFlags{Tradable: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.PlaceLiquidityOrder(alice, 1, unit, orders.DirectionAdd, 0); !errors.Is(err, poolerr.ErrAssetDisabled) {
		t.Errorf("disabled: got %v", err)
	}
}

// ============================================================================
// Test: fill timing and authorization
// ============================================================================

func TestFill_NonBroker(t *testing.T) {
	f := newFixture(t, nil)
	id := f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0)

	_, err := f.engine.FillLiquidityOrder(context.Background(), "not-a-broker", id, core.FillPrices{AssetPrice: price})
	if !errors.Is(err, poolerr.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
	if len(f.engine.PendingOrders()) != 1 {
		t.Error("rejected fill must leave the order pending")
	}
}

func TestFill_BeforeLockPeriod(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.engine.PlaceLiquidityOrder(alice, 1, 100*unit, orders.DirectionAdd, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	f.clock.Advance(30 * time.Second) // lock is one minute
	_, err = f.engine.FillLiquidityOrder(context.Background(), brokerAddr, id, core.FillPrices{AssetPrice: price})
	if !errors.Is(err, poolerr.ErrLockPeriodNotElapsed) {
		t.Errorf("got %v, want ErrLockPeriodNotElapsed", err)
	}
}

func TestFill_AfterTimeout(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.engine.PlaceLiquidityOrder(alice, 1, 100*unit, orders.DirectionAdd, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	f.clock.Advance(2 * time.Hour) // timeout is one hour
	_, err = f.engine.FillLiquidityOrder(context.Background(), brokerAddr, id, core.FillPrices{AssetPrice: price})
	if !errors.Is(err, poolerr.ErrOrderExpired) {
		t.Errorf("got %v, want ErrOrderExpired", err)
	}
}

func TestFill_AtMostOnce(t *testing.T) {
	f := newFixture(t, nil)
	id := f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0)
	f.fill(t, id)

	_, err := f.engine.FillLiquidityOrder(context.Background(), brokerAddr, id, core.FillPrices{AssetPrice: price})
	if !errors.Is(err, poolerr.ErrOrderNotFound) {
		t.Errorf("second fill: got %v, want ErrOrderNotFound", err)
	}
}

// ============================================================================
// Test: add fills
// ============================================================================

func TestFill_SeedMintsAtPar(t *testing.T) {
	f := newFixture(t, nil)
	id := f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0)

	result := f.fill(t, id)

	// Seed fill: one share per unit of value. 100 units at price 2.0.
	wantShares := int64(200 * unit)
	if result.SharesMinted != wantShares {
		t.Errorf("shares: got %d, want %d", result.SharesMinted, wantShares)
	}
	if result.AmountOut != 0 || result.Fee != 0 {
		t.Errorf("got %+v", result)
	}
	if f.engine.ShareSupply() != wantShares {
		t.Errorf("supply: got %d, want %d", f.engine.ShareSupply(), wantShares)
	}

	info, err := f.engine.GetAssetInfo(1)
	if err != nil {
		t.Fatalf("asset info: %v", err)
	}
	if info.Entry.SpotLiquidity != 100*unit {
		t.Errorf("spot: got %d, want %d", info.Entry.SpotLiquidity, 100*unit)
	}

	if len(f.shares.minted) != 1 || f.shares.minted[0].Account != alice || f.shares.minted[0].Amount != wantShares {
		t.Errorf("mint calls: got %+v", f.shares.minted)
	}
}

func TestFill_ProportionalMint(t *testing.T) {
	f := newFixture(t, nil)
	f.fill(t, f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))

	result := f.fill(t, f.placeAndUnlock(t, bob, 50*unit, orders.DirectionAdd, 0))

	// Pool holds 100 units worth 200; bob adds value 100 against supply
	// 200, minting 100 shares.
	if result.SharesMinted != 100*unit {
		t.Errorf("shares: got %d, want %d", result.SharesMinted, 100*unit)
	}
	if f.engine.ShareSupply() != 300*unit {
		t.Errorf("supply: got %d, want %d", f.engine.ShareSupply(), 300*unit)
	}
}

func TestFill_FeeRetainedInsideSpot(t *testing.T) {
	// 1% flat fee.
	f := newFixture(t, core.FlatFeeStrategy{BaseRate: 1_000})
	id := f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0)

	result := f.fill(t, id)

	wantFee := int64(unit) // 1% of 100 units
	if result.Fee != wantFee {
		t.Errorf("fee: got %d, want %d", result.Fee, wantFee)
	}
	// Shares are minted on the net amount: 99 units at price 2.0.
	if result.SharesMinted != 198*unit {
		t.Errorf("shares: got %d, want %d", result.SharesMinted, 198*unit)
	}

	info, _ := f.engine.GetAssetInfo(1)
	// The fee's cash sits inside spot; only the net amount entered as
	// depositor liquidity.
	if info.Entry.SpotLiquidity != 99*unit {
		t.Errorf("spot: got %d, want %d", info.Entry.SpotLiquidity, 99*unit)
	}
	if info.Entry.CollectedFee != wantFee {
		t.Errorf("collected fee: got %d, want %d", info.Entry.CollectedFee, wantFee)
	}
}

func TestFill_MinOutSlippage(t *testing.T) {
	f := newFixture(t, nil)
	// 100 units at price 2.0 mints 200 shares; demand 201.
	id := f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 201*unit)

	_, err := f.engine.FillLiquidityOrder(context.Background(), brokerAddr, id, core.FillPrices{
		AssetPrice:     price,
		ReferencePrice: price,
	})
	if !errors.Is(err, poolerr.ErrSlippageExceeded) {
		t.Errorf("got %v, want ErrSlippageExceeded", err)
	}
	if len(f.engine.PendingOrders()) != 1 {
		t.Error("slippage rejection must leave the order pending")
	}
	if f.engine.ShareSupply() != 0 {
		t.Error("slippage rejection must not mint")
	}
}

func TestFill_MintFailureLeavesStatePristine(t *testing.T) {
	f := newFixture(t, nil)
	id := f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0)
	f.shares.failNext = true

	_, err := f.engine.FillLiquidityOrder(context.Background(), brokerAddr, id, core.FillPrices{
		AssetPrice:     price,
		ReferencePrice: price,
	})
	if err == nil {
		t.Fatal("fill should surface mint failure")
	}

	if f.engine.ShareSupply() != 0 {
		t.Error("failed mint must not change supply")
	}
	info, _ := f.engine.GetAssetInfo(1)
	if info.Entry.SpotLiquidity != 0 || info.Entry.CollectedFee != 0 {
		t.Errorf("ledger mutated: %+v", info.Entry)
	}
	if len(f.engine.PendingOrders()) != 1 {
		t.Error("order must stay pending after failed mint")
	}
}

// ============================================================================
// Test: remove fills
// ============================================================================

func TestFill_Remove(t *testing.T) {
	f := newFixture(t, nil)
	f.fill(t, f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))

	// Redeem a third of the supply: 200/3 rounds down per fixed point.
	id := f.placeAndUnlock(t, alice, 100*unit, orders.DirectionRemove, 0)
	result := f.fill(t, id)

	// 100 shares of 200 claim half the pool value (100), worth 50 units
	// at price 2.0.
	if result.SharesMinted != -100*unit {
		t.Errorf("shares burned: got %d, want %d", result.SharesMinted, -100*unit)
	}
	if result.AmountOut != 50*unit {
		t.Errorf("amount out: got %d, want %d", result.AmountOut, 50*unit)
	}
	if f.engine.ShareSupply() != 100*unit {
		t.Errorf("supply: got %d, want %d", f.engine.ShareSupply(), 100*unit)
	}

	info, _ := f.engine.GetAssetInfo(1)
	if info.Entry.SpotLiquidity != 50*unit {
		t.Errorf("spot: got %d, want %d", info.Entry.SpotLiquidity, 50*unit)
	}

	// Shares burn before tokens leave.
	if len(f.shares.burned) != 1 || f.shares.burned[0].Amount != 100*unit {
		t.Errorf("burn calls: got %+v", f.shares.burned)
	}
	if len(f.tokens.transfers) != 1 {
		t.Fatalf("transfers: got %d, want 1", len(f.tokens.transfers))
	}
	tr := f.tokens.transfers[0]
	if tr.Token != "0xbtc" || tr.To != alice || tr.Amount != 50*unit {
		t.Errorf("transfer: got %+v", tr)
	}
}

func TestFill_RemoveExceedsSupply(t *testing.T) {
	f := newFixture(t, nil)
	f.fill(t, f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))

	id := f.placeAndUnlock(t, alice, 201*unit, orders.DirectionRemove, 0)
	_, err := f.engine.FillLiquidityOrder(context.Background(), brokerAddr, id, core.FillPrices{
		AssetPrice:     price,
		ReferencePrice: price,
	})
	if !errors.Is(err, poolerr.ErrInsufficientShares) {
		t.Errorf("got %v, want ErrInsufficientShares", err)
	}
}

// ============================================================================
// Test: price guards on the fill path
// ============================================================================

func TestFill_StrictDeviationRejects(t *testing.T) {
	f := newFixture(t, nil)
	flags := registry.AssetFlags{Enabled: true, Tradable: true, Openable: true, Strict: true}
	if err := f.engine.SetAssetFlags(governance, 1, flags); err != nil {
		t.Fatal(err)
	}

	id := f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0)

	// Deviation bound is 1%; propose a 5% premium over reference.
	_, err := f.engine.FillLiquidityOrder(context.Background(), brokerAddr, id, core.FillPrices{
		AssetPrice:     price + price/20,
		ReferencePrice: price,
	})
	if !errors.Is(err, poolerr.ErrReferenceOracleDeviation) {
		t.Errorf("got %v, want ErrReferenceOracleDeviation", err)
	}
	if len(f.engine.PendingOrders()) != 1 {
		t.Error("deviation rejection must leave the order pending")
	}
}

func TestFill_EmergencyHalt(t *testing.T) {
	f := newFixture(t, nil)
	f.fill(t, f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))

	// NAV per share is 1.0; configure a band it cannot satisfy.
	if err := f.engine.SetEmergencyBounds(governance, 500_000_000, 900_000_000); err != nil {
		t.Fatalf("set bounds: %v", err)
	}

	id := f.placeAndUnlock(t, bob, 10*unit, orders.DirectionAdd, 0)
	_, err := f.engine.FillLiquidityOrder(context.Background(), brokerAddr, id, core.FillPrices{
		AssetPrice:     price,
		ReferencePrice: price,
	})
	if !errors.Is(err, poolerr.ErrEmergencyHalt) {
		t.Errorf("got %v, want ErrEmergencyHalt", err)
	}
}

func TestFill_HalfSpreadSkew(t *testing.T) {
	f := newFixture(t, nil)
	// 0.1% half-spread marks incoming value down.
	if err := f.engine.SetAssetParams(governance, 1, registry.AssetParams{
		SpotWeight: 1,
		HalfSpread: 100,
	}); err != nil {
		t.Fatal(err)
	}

	result := f.fill(t, f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))

	// Skewed price 2.0 * 0.999 = 1.998, so 100 units seed 199.8 shares.
	want := int64(199_800_000_000)
	if result.SharesMinted != want {
		t.Errorf("shares: got %d, want %d", result.SharesMinted, want)
	}
}

func TestFill_BrokerGasCompensation(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.engine.SetBrokerGasCompensation(governance, unit); err != nil {
		t.Fatalf("set compensation: %v", err)
	}

	result := f.fill(t, f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))

	// 1 unit goes to the broker, 99 enter the pool: 99 * 2.0 seed shares.
	if result.GasCompensation != unit {
		t.Errorf("compensation: got %d, want %d", result.GasCompensation, unit)
	}
	if result.SharesMinted != 198*unit {
		t.Errorf("shares: got %d, want %d", result.SharesMinted, 198*unit)
	}
	if len(f.tokens.transfers) != 1 {
		t.Fatalf("transfers: got %d, want 1", len(f.tokens.transfers))
	}
	tr := f.tokens.transfers[0]
	if tr.Token != "0xbtc" || tr.To != brokerAddr || tr.Amount != unit {
		t.Errorf("broker payout: got %+v", tr)
	}
	info, err := f.engine.GetAssetInfo(1)
	if err != nil {
		t.Fatal(err)
	}
	if info.Entry.SpotLiquidity != 99*unit {
		t.Errorf("spot: got %d, want %d", info.Entry.SpotLiquidity, 99*unit)
	}

	// Remove fills pay the broker out of the account's redemption.
	result = f.fill(t, f.placeAndUnlock(t, alice, 99*unit, orders.DirectionRemove, 0))

	// 99 shares redeem 49.5 units gross at price 2.0; broker takes 1.
	if result.AmountOut != 48_500_000_000 {
		t.Errorf("amount out: got %d, want 48_500_000_000", result.AmountOut)
	}
	last := f.tokens.transfers[len(f.tokens.transfers)-1]
	if last.To != brokerAddr || last.Amount != unit {
		t.Errorf("broker payout: got %+v", last)
	}
	info, err = f.engine.GetAssetInfo(1)
	if err != nil {
		t.Fatal(err)
	}
	if info.Entry.SpotLiquidity != 49_500_000_000 {
		t.Errorf("spot after remove: got %d, want 49_500_000_000", info.Entry.SpotLiquidity)
	}
}

func TestSetBrokerGasCompensation_Validation(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.engine.SetBrokerGasCompensation(alice, unit); !errors.Is(err, poolerr.ErrUnauthorized) {
		t.Errorf("non-governance: got %v, want ErrUnauthorized", err)
	}
	if err := f.engine.SetBrokerGasCompensation(governance, -1); !errors.Is(err, poolerr.ErrInvalidParams) {
		t.Errorf("negative: got %v, want ErrInvalidParams", err)
	}
}

// ============================================================================
// Test: cancellation
// ============================================================================

func TestCancel_OwnerRefundsEscrow(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.engine.PlaceLiquidityOrder(alice, 1, 100*unit, orders.DirectionAdd, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if err := f.engine.CancelLiquidityOrder(context.Background(), alice, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if len(f.engine.PendingOrders()) != 0 {
		t.Error("cancelled order should leave the pending set")
	}
	// Escrowed tokens flow straight back; they never entered the ledger.
	if len(f.tokens.transfers) != 1 {
		t.Fatalf("transfers: got %d, want 1", len(f.tokens.transfers))
	}
	tr := f.tokens.transfers[0]
	if tr.To != alice || tr.Amount != 100*unit {
		t.Errorf("refund: got %+v", tr)
	}
}

func TestCancel_RemoveOrderHasNoRefund(t *testing.T) {
	f := newFixture(t, nil)
	f.fill(t, f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))
	transfersBefore := len(f.tokens.transfers)

	id, err := f.engine.PlaceLiquidityOrder(alice, 1, 50*unit, orders.DirectionRemove, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := f.engine.CancelLiquidityOrder(context.Background(), alice, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(f.tokens.transfers) != transfersBefore {
		t.Error("remove orders escrow nothing, cancel must not transfer")
	}
}

func TestCancel_NonOwnerBeforeTimeout(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.engine.PlaceLiquidityOrder(alice, 1, 100*unit, orders.DirectionAdd, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	err = f.engine.CancelLiquidityOrder(context.Background(), bob, id)
	if !errors.Is(err, poolerr.ErrOrderNotCancellable) {
		t.Errorf("got %v, want ErrOrderNotCancellable", err)
	}
	if len(f.engine.PendingOrders()) != 1 {
		t.Error("rejected cancel must leave the order pending")
	}
}

func TestCancel_AnyoneAfterTimeout(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.engine.PlaceLiquidityOrder(alice, 1, 100*unit, orders.DirectionAdd, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	if err := f.engine.CancelLiquidityOrder(context.Background(), bob, id); err != nil {
		t.Fatalf("timeout cancel: %v", err)
	}
	if len(f.engine.PendingOrders()) != 0 {
		t.Error("timed-out order should be cancellable by anyone")
	}
}

// ============================================================================
// Test: lending through the engine
// ============================================================================

func TestBorrowRepay(t *testing.T) {
	f := newFixture(t, nil)
	f.fill(t, f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))
	ctx := context.Background()

	if err := f.engine.Borrow(ctx, bob, 1, "venue", 10*unit, 0); !errors.Is(err, poolerr.ErrUnauthorized) {
		t.Errorf("non-governance borrow: got %v, want ErrUnauthorized", err)
	}

	if err := f.engine.Borrow(ctx, governance, 1, "venue", 40*unit, unit); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	info, _ := f.engine.GetAssetInfo(1)
	if info.Entry.Credit != 40*unit {
		t.Errorf("credit: got %d, want %d", info.Entry.Credit, 40*unit)
	}
	if info.Entry.SpotLiquidity != 61*unit {
		t.Errorf("spot: got %d, want %d", info.Entry.SpotLiquidity, 61*unit)
	}

	if err := f.engine.Repay(ctx, governance, 1, "venue", 40*unit, 2*unit, 0); err != nil {
		t.Fatalf("repay: %v", err)
	}
	info, _ = f.engine.GetAssetInfo(1)
	if info.Entry.Credit != 0 {
		t.Errorf("credit after repay: got %d, want 0", info.Entry.Credit)
	}
	if info.Entry.CollectedFee != 3*unit {
		t.Errorf("collected fee: got %d, want %d", info.Entry.CollectedFee, 3*unit)
	}
}

func TestAccrueFunding_AnyCaller(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.engine.AccrueFunding(1); err != nil {
		t.Errorf("accrue by anyone: %v", err)
	}
	if err := f.engine.AccrueFunding(9); !errors.Is(err, poolerr.ErrUnknownAsset) {
		t.Errorf("unknown asset: got %v", err)
	}
}

// ============================================================================
// Test: snapshot and replay
// ============================================================================

func TestSnapshot_Roundtrip(t *testing.T) {
	f := newFixture(t, nil)
	f.fill(t, f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))
	if _, err := f.engine.PlaceLiquidityOrder(bob, 1, 25*unit, orders.DirectionAdd, unit); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := f.engine.Borrow(context.Background(), governance, 1, "venue", 20*unit, unit); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	snap := f.engine.CreateSnapshotState()

	restored := newFixture(t, nil)
	if err := restored.engine.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	wantState := f.engine.GetPoolState()
	gotState := restored.engine.GetPoolState()
	if gotState != wantState {
		t.Errorf("pool state:\n got %+v\nwant %+v", gotState, wantState)
	}

	wantInfo, _ := f.engine.GetAssetInfo(1)
	gotInfo, _ := restored.engine.GetAssetInfo(1)
	if gotInfo.Entry != wantInfo.Entry {
		t.Errorf("entry: got %+v, want %+v", gotInfo.Entry, wantInfo.Entry)
	}
	if gotInfo.Funding != wantInfo.Funding {
		t.Errorf("funding: got %+v, want %+v", gotInfo.Funding, wantInfo.Funding)
	}

	wantOrders := f.engine.PendingOrders()
	gotOrders := restored.engine.PendingOrders()
	if len(gotOrders) != len(wantOrders) {
		t.Fatalf("pending: got %d, want %d", len(gotOrders), len(wantOrders))
	}
	for i := range wantOrders {
		if gotOrders[i] != wantOrders[i] {
			t.Errorf("order %d: got %+v, want %+v", i, gotOrders[i], wantOrders[i])
		}
	}
}

func TestReplay_RebuildsLiveState(t *testing.T) {
	live := newFixture(t, core.FlatFeeStrategy{BaseRate: 1_000})
	ctx := context.Background()

	live.fill(t, live.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))
	cancelled, err := live.engine.PlaceLiquidityOrder(bob, 1, 10*unit, orders.DirectionAdd, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := live.engine.CancelLiquidityOrder(ctx, bob, cancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := live.engine.Borrow(ctx, governance, 1, "venue", 30*unit, unit); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := live.engine.Repay(ctx, governance, 1, "venue", 20*unit, unit, 5*unit); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if _, err := live.engine.PlaceLiquidityOrder(bob, 1, 7*unit, orders.DirectionAdd, 0); err != nil {
		t.Fatalf("place pending: %v", err)
	}

	replayed := newFixture(t, nil)
	for _, out := range live.drainRecords() {
		if err := replayed.engine.ApplyRecord(out.Envelope); err != nil {
			t.Fatalf("apply %d: %v", out.Envelope.Sequence, err)
		}
	}

	if replayed.engine.Sequence() != live.engine.Sequence() {
		t.Errorf("sequence: got %d, want %d", replayed.engine.Sequence(), live.engine.Sequence())
	}
	if replayed.engine.ShareSupply() != live.engine.ShareSupply() {
		t.Errorf("supply: got %d, want %d", replayed.engine.ShareSupply(), live.engine.ShareSupply())
	}

	wantInfo, _ := live.engine.GetAssetInfo(1)
	gotInfo, _ := replayed.engine.GetAssetInfo(1)
	if gotInfo.Entry != wantInfo.Entry {
		t.Errorf("entry: got %+v, want %+v", gotInfo.Entry, wantInfo.Entry)
	}

	wantOrders := live.engine.PendingOrders()
	gotOrders := replayed.engine.PendingOrders()
	if len(gotOrders) != len(wantOrders) {
		t.Fatalf("pending: got %d, want %d", len(gotOrders), len(wantOrders))
	}
	for i := range wantOrders {
		if gotOrders[i].OrderID != wantOrders[i].OrderID || gotOrders[i].Amount != wantOrders[i].Amount {
			t.Errorf("order %d: got %+v, want %+v", i, gotOrders[i], wantOrders[i])
		}
	}
}

func TestApplyRecord_SkipsReflectedSequence(t *testing.T) {
	live := newFixture(t, nil)
	live.fill(t, live.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))
	records := live.drainRecords()

	replayed := newFixture(t, nil)
	for _, out := range records {
		if err := replayed.engine.ApplyRecord(out.Envelope); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	supply := replayed.engine.ShareSupply()

	// Re-applying the same records must be a no-op.
	for _, out := range records {
		if err := replayed.engine.ApplyRecord(out.Envelope); err != nil {
			t.Fatalf("re-apply: %v", err)
		}
	}
	if replayed.engine.ShareSupply() != supply {
		t.Errorf("supply changed on duplicate replay: got %d, want %d", replayed.engine.ShareSupply(), supply)
	}
}

// ============================================================================
// Test: governance configuration
// ============================================================================

func TestSetLockPeriod_Governance(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.engine.SetLockPeriod(bob, time.Minute); !errors.Is(err, poolerr.ErrUnauthorized) {
		t.Errorf("non-governance: got %v, want ErrUnauthorized", err)
	}
	if err := f.engine.SetLockPeriod(governance, 5*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := f.engine.GetPoolState().LockPeriod; got != 5*time.Minute {
		t.Errorf("lock period: got %v, want 5m", got)
	}
}

func TestComputeNav(t *testing.T) {
	f := newFixture(t, nil)
	f.fill(t, f.placeAndUnlock(t, alice, 100*unit, orders.DirectionAdd, 0))

	nav, err := f.engine.ComputeNav(map[registry.AssetID]int64{1: price})
	if err != nil {
		t.Fatalf("nav: %v", err)
	}
	if nav != 200*unit {
		t.Errorf("nav: got %d, want %d", nav, 200*unit)
	}

	if _, err := f.engine.ComputeNav(map[registry.AssetID]int64{}); !errors.Is(err, poolerr.ErrInvalidPrice) {
		t.Errorf("missing mark price: got %v, want ErrInvalidPrice", err)
	}
}
