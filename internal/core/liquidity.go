package core

import (
	"context"
	"time"

	"PoolCore/internal/event"
	fpmath "PoolCore/internal/math"
	"PoolCore/internal/orders"
	"PoolCore/internal/poolerr"
	"PoolCore/internal/registry"
)

// FillPrices carries the broker-attested prices for one fill. AssetPrice
// is the execution price for the order's asset; ReferencePrice is the
// on-chain oracle reading used for deviation checks on strict assets.
// MarkPrices values every weighted asset for NAV; the order's own asset
// defaults to AssetPrice when absent.
type FillPrices struct {
	AssetPrice     int64
	ReferencePrice int64
	MarkPrices     map[registry.AssetID]int64
}

// FillResult reports the terminal effect of a fill.
type FillResult struct {
	SharesMinted    int64 // negative when shares were burned
	AmountOut       int64 // asset paid out, zero on add fills
	Fee             int64
	GasCompensation int64 // paid to the filling broker
	NavBefore       int64
}

// PlaceLiquidityOrder enqueues a delayed liquidity order. Add orders carry
// an asset amount the account has already delivered to the pool contract;
// remove orders carry a share amount. The order only takes economic effect
// when a broker fills it after the lock period.
func (e *Engine) PlaceLiquidityOrder(account string, assetID registry.AssetID, amount int64, direction orders.Direction, minOut int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.registry.Get(assetID)
	if !ok {
		return 0, poolerr.Detail(poolerr.ErrUnknownAsset, "place id=%d", assetID)
	}
	if !asset.Flags.Enabled {
		return 0, poolerr.Detail(poolerr.ErrAssetDisabled, "place %s", asset.Symbol)
	}
	if !asset.Flags.Tradable {
		return 0, poolerr.Detail(poolerr.ErrAssetNotTradable, "place %s", asset.Symbol)
	}
	if amount <= 0 {
		return 0, poolerr.Detail(poolerr.ErrInvalidParams, "place amount=%d", amount)
	}
	if minOut < 0 {
		return 0, poolerr.Detail(poolerr.ErrInvalidParams, "place minOut=%d", minOut)
	}

	now := e.clock()
	orderID := e.queue.Place(account, assetID, amount, direction, minOut, now)

	e.emit(event.RecordTypeOrderPlaced, assetID, orderID, account, event.OrderPlaced{
		OrderID:   orderID,
		Account:   account,
		AssetID:   uint8(assetID),
		Amount:    amount,
		Direction: direction.String(),
		MinOut:    minOut,
		PlacedAt:  now.Unix(),
	})

	if e.metrics != nil {
		e.metrics.OrdersPlaced.WithLabelValues(direction.String()).Inc()
		e.metrics.PendingOrders.Set(float64(e.queue.Len()))
	}
	e.log.Info().
		Uint64("order_id", orderID).
		Str("account", account).
		Str("asset", asset.Symbol).
		Str("direction", direction.String()).
		Int64("amount", amount).
		Msg("liquidity order placed")

	return orderID, nil
}

// FillLiquidityOrder settles a pending order at broker-supplied prices.
// Only registered brokers may fill, and only inside the window between the
// lock period and the order timeout. All checks and external token calls
// complete before the ledger commits, so a rejected fill leaves the order
// pending and the pool untouched.
func (e *Engine) FillLiquidityOrder(ctx context.Context, brokerAddr string, orderID uint64, prices FillPrices) (FillResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	defer e.observeSettle("fill", start)

	if !e.brokers.IsBroker(brokerAddr) {
		return FillResult{}, e.rejectFill(poolerr.Detail(poolerr.ErrUnauthorized, "fill by non-broker %q", brokerAddr))
	}

	order, err := e.queue.Peek(orderID)
	if err != nil {
		return FillResult{}, e.rejectFill(err)
	}

	now := e.clock()
	elapsed := now.Sub(order.PlacedAt)
	if elapsed < e.lockPeriod {
		return FillResult{}, e.rejectFill(poolerr.Detail(poolerr.ErrLockPeriodNotElapsed,
			"order %d placed %v ago, lock %v", orderID, elapsed, e.lockPeriod))
	}
	if e.maxOrderTimeout > 0 && elapsed > e.maxOrderTimeout {
		return FillResult{}, e.rejectFill(poolerr.Detail(poolerr.ErrOrderExpired,
			"order %d placed %v ago, timeout %v", orderID, elapsed, e.maxOrderTimeout))
	}

	asset, ok := e.registry.Get(order.AssetID)
	if !ok {
		return FillResult{}, e.rejectFill(poolerr.Detail(poolerr.ErrUnknownAsset, "fill id=%d", order.AssetID))
	}
	if !asset.Flags.Enabled {
		return FillResult{}, e.rejectFill(poolerr.Detail(poolerr.ErrAssetDisabled, "fill %s", asset.Symbol))
	}
	if asset.Params.SpotWeight == 0 {
		return FillResult{}, e.rejectFill(poolerr.Detail(poolerr.ErrInvalidParams,
			"%s has no spot weight", asset.Symbol))
	}

	if err := e.ledger.Accrue(order.AssetID, now); err != nil {
		return FillResult{}, e.rejectFill(err)
	}
	if err := e.guard.CheckPrice(order.AssetID, prices.AssetPrice, prices.ReferencePrice); err != nil {
		return FillResult{}, e.rejectFill(err)
	}

	mark := e.markPrices(order.AssetID, prices)
	navBefore, err := e.nav(mark)
	if err != nil {
		return FillResult{}, e.rejectFill(err)
	}
	if err := e.guard.CheckEmergencyBounds(e.navPerShare(navBefore)); err != nil {
		return FillResult{}, e.rejectFill(err)
	}

	entry := e.ledger.Entry(order.AssetID)
	util := fpmath.Utilization(entry.SpotLiquidity, entry.Credit)

	var result FillResult
	switch order.Direction {
	case orders.DirectionAdd:
		result, err = e.fillAdd(ctx, asset, order, brokerAddr, navBefore, util,
			e.guard.SkewPrice(order.AssetID, prices.AssetPrice, true))
	case orders.DirectionRemove:
		result, err = e.fillRemove(ctx, asset, order, brokerAddr, navBefore, util,
			e.guard.SkewPrice(order.AssetID, prices.AssetPrice, false))
	default:
		err = poolerr.Detail(poolerr.ErrInvalidParams, "direction %d", order.Direction)
	}
	if err != nil {
		return FillResult{}, e.rejectFill(err)
	}
	result.NavBefore = navBefore

	if err := e.queue.Remove(orderID); err != nil {
		return FillResult{}, err
	}

	e.emit(event.RecordTypeOrderFilled, order.AssetID, orderID, order.Account, event.OrderFilled{
		OrderID:         orderID,
		Account:         order.Account,
		AssetID:         uint8(order.AssetID),
		Direction:       order.Direction.String(),
		Amount:          order.Amount,
		Fee:             result.Fee,
		Price:           prices.AssetPrice,
		SharesMinted:    result.SharesMinted,
		AmountOut:       result.AmountOut,
		GasCompensation: result.GasCompensation,
		NavBefore:       navBefore,
		Broker:          brokerAddr,
	})

	if err := e.validator.ValidateNonNegative(order.AssetID); err != nil {
		e.log.Error().Err(err).Uint64("order_id", orderID).Msg("ledger invariant violated after fill")
		return result, err
	}

	e.observeAsset(order.AssetID)
	if e.metrics != nil {
		e.metrics.OrdersFilled.WithLabelValues(order.Direction.String()).Inc()
		e.metrics.PendingOrders.Set(float64(e.queue.Len()))
		e.metrics.ShareSupply.Set(float64(e.shareSupply))
		if navAfter, err := e.nav(mark); err == nil {
			e.metrics.PoolNav.Set(float64(navAfter))
			e.metrics.NavPerShare.Set(float64(e.navPerShare(navAfter)))
		}
	}
	e.log.Info().
		Uint64("order_id", orderID).
		Str("broker", brokerAddr).
		Str("asset", asset.Symbol).
		Str("direction", order.Direction.String()).
		Int64("shares", result.SharesMinted).
		Int64("amount_out", result.AmountOut).
		Int64("fee", result.Fee).
		Msg("liquidity order filled")

	return result, nil
}

// fillAdd converts a delivered asset amount into freshly minted shares.
// The broker's gas compensation comes out of the delivered amount, so the
// account funds it and pool conservation is unaffected.
func (e *Engine) fillAdd(ctx context.Context, asset registry.Asset, order orders.LiquidityOrder, brokerAddr string, navBefore, util, skewedPrice int64) (FillResult, error) {
	fee := e.fees.LiquidityFee(asset, order.Amount, order.Direction, util)
	comp := e.gasCompensation
	amountNet := order.Amount - fee - comp
	if amountNet <= 0 {
		return FillResult{}, poolerr.Detail(poolerr.ErrInvalidParams,
			"fee %d and compensation %d consume amount %d", fee, comp, order.Amount)
	}

	valueAdded := asset.Params.SpotWeight * fpmath.Value(amountNet, skewedPrice)

	var shares int64
	if e.shareSupply == 0 {
		// Seed fill: one share per unit of value, pricing the share at par.
		shares = valueAdded
	} else {
		if navBefore <= 0 {
			return FillResult{}, poolerr.Detail(poolerr.ErrInsufficientLiquidity,
				"pool nav %d with supply %d", navBefore, e.shareSupply)
		}
		shares = fpmath.MulDiv(valueAdded, e.shareSupply, navBefore, fpmath.RoundDown)
	}
	if shares <= 0 || shares < order.MinOut {
		return FillResult{}, poolerr.Detail(poolerr.ErrSlippageExceeded,
			"minted %d shares, minOut %d", shares, order.MinOut)
	}

	if err := e.shares.Mint(ctx, order.Account, shares); err != nil {
		return FillResult{}, err
	}
	if comp > 0 {
		// Pay the broker from the escrowed deposit; that slice never
		// enters the ledger.
		if err := e.ledger.Transfer(ctx, asset.Token, brokerAddr, comp); err != nil {
			return FillResult{}, err
		}
	}

	// Commit. Neither call can fail: amountNet > 0 and fee >= 0.
	if err := e.ledger.DepositLiquidity(order.AssetID, amountNet); err != nil {
		return FillResult{}, err
	}
	if err := e.ledger.CollectFee(order.AssetID, fee); err != nil {
		return FillResult{}, err
	}
	e.shareSupply += shares

	if e.metrics != nil {
		e.metrics.SharesMinted.Add(float64(shares))
	}
	return FillResult{SharesMinted: shares, Fee: fee, GasCompensation: comp}, nil
}

// fillRemove redeems shares for the order's asset at the current NAV.
// The broker's gas compensation comes out of the account's payout.
func (e *Engine) fillRemove(ctx context.Context, asset registry.Asset, order orders.LiquidityOrder, brokerAddr string, navBefore, util, skewedPrice int64) (FillResult, error) {
	if order.Amount > e.shareSupply {
		return FillResult{}, poolerr.Detail(poolerr.ErrInsufficientShares,
			"redeem %d shares, supply %d", order.Amount, e.shareSupply)
	}

	valueOut := fpmath.MulDiv(order.Amount, navBefore, e.shareSupply, fpmath.RoundDown)
	amountGross := fpmath.AmountFromValue(valueOut/asset.Params.SpotWeight, skewedPrice)
	fee := e.fees.LiquidityFee(asset, amountGross, order.Direction, util)
	comp := e.gasCompensation
	amountNet := amountGross - fee - comp
	if amountNet <= 0 {
		return FillResult{}, poolerr.Detail(poolerr.ErrSlippageExceeded,
			"redemption nets %d after fee %d and compensation %d", amountNet, fee, comp)
	}
	if amountNet < order.MinOut {
		return FillResult{}, poolerr.Detail(poolerr.ErrSlippageExceeded,
			"amount out %d, minOut %d", amountNet, order.MinOut)
	}
	entry := e.ledger.Entry(order.AssetID)
	if amountNet+comp > entry.SpotLiquidity {
		return FillResult{}, poolerr.Detail(poolerr.ErrInsufficientLiquidity,
			"redeem %d %s, spot %d", amountNet+comp, asset.Symbol, entry.SpotLiquidity)
	}

	if err := e.shares.Burn(ctx, order.Account, order.Amount); err != nil {
		return FillResult{}, err
	}
	if err := e.ledger.Transfer(ctx, asset.Token, order.Account, amountNet); err != nil {
		return FillResult{}, err
	}
	if comp > 0 {
		if err := e.ledger.Transfer(ctx, asset.Token, brokerAddr, comp); err != nil {
			return FillResult{}, err
		}
	}

	// Commit. The spot check above makes the withdrawal infallible; the
	// fee stays inside spot as collected revenue.
	if err := e.ledger.WithdrawLiquidity(order.AssetID, amountNet+comp); err != nil {
		return FillResult{}, err
	}
	if err := e.ledger.CollectFee(order.AssetID, fee); err != nil {
		return FillResult{}, err
	}
	e.shareSupply -= order.Amount

	if e.metrics != nil {
		e.metrics.SharesBurned.Add(float64(order.Amount))
	}
	return FillResult{SharesMinted: -order.Amount, AmountOut: amountNet, Fee: fee, GasCompensation: comp}, nil
}

// CancelLiquidityOrder removes a pending order. The owner may cancel at any
// time; anyone may cancel once the order has outlived the timeout, which
// keeps the pending set from accumulating dead orders. Cancelled add orders
// get their escrowed tokens returned.
func (e *Engine) CancelLiquidityOrder(ctx context.Context, caller string, orderID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.queue.Peek(orderID)
	if err != nil {
		return err
	}

	now := e.clock()
	afterTimeout := e.maxOrderTimeout > 0 && now.Sub(order.PlacedAt) > e.maxOrderTimeout
	if caller != order.Account && !afterTimeout {
		return poolerr.Detail(poolerr.ErrOrderNotCancellable,
			"order %d owned by %q, caller %q", orderID, order.Account, caller)
	}

	if order.Direction == orders.DirectionAdd {
		asset, ok := e.registry.Get(order.AssetID)
		if !ok {
			return poolerr.Detail(poolerr.ErrUnknownAsset, "cancel id=%d", order.AssetID)
		}
		// Escrowed tokens never entered the ledger; hand them straight back.
		if err := e.ledger.Transfer(ctx, asset.Token, order.Account, order.Amount); err != nil {
			return err
		}
	}

	if err := e.queue.Remove(orderID); err != nil {
		return err
	}

	e.emit(event.RecordTypeOrderCancelled, order.AssetID, orderID, order.Account, event.OrderCancelled{
		OrderID:      orderID,
		Account:      order.Account,
		AssetID:      uint8(order.AssetID),
		Caller:       caller,
		AfterTimeout: afterTimeout,
	})

	if e.metrics != nil {
		reason := "owner"
		if caller != order.Account {
			reason = "timeout"
		}
		e.metrics.OrdersCancelled.WithLabelValues(reason).Inc()
		e.metrics.PendingOrders.Set(float64(e.queue.Len()))
	}
	e.log.Info().
		Uint64("order_id", orderID).
		Str("caller", caller).
		Bool("after_timeout", afterTimeout).
		Msg("liquidity order cancelled")

	return nil
}

// markPrices resolves the NAV price map, defaulting the order's own asset
// to the execution price when the broker omitted it.
func (e *Engine) markPrices(assetID registry.AssetID, prices FillPrices) map[registry.AssetID]int64 {
	mark := make(map[registry.AssetID]int64, len(prices.MarkPrices)+1)
	for id, p := range prices.MarkPrices {
		mark[id] = p
	}
	if _, ok := mark[assetID]; !ok {
		mark[assetID] = prices.AssetPrice
	}
	return mark
}

func (e *Engine) rejectFill(err error) error {
	if e.metrics != nil {
		e.metrics.FillsRejected.WithLabelValues(e.rejectKind(err)).Inc()
	}
	return err
}
