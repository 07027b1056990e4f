package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ExecuteSellOrder settles an active sell order: the caller buys the asset,
// paying the full price directly; the seller nets price minus fee. All effects
// (fund movement, status transition, trade record, valuation update, aggregate
// counters) commit inside one critical section or not at all.
func (e *Exchange) ExecuteSellOrder(ctx context.Context, caller uuid.UUID, orderID ID) (Trade, error) {
	if caller == uuid.Nil {
		return Trade{}, fmt.Errorf("caller principal is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ord, ok := e.orders[orderID]
	if !ok {
		return Trade{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if ord.Status != OrderStatusActive {
		return Trade{}, fmt.Errorf("order %s is %s: %w", orderID, ord.Status, ErrInvalidState)
	}
	if ord.Kind != OrderKindSell {
		return Trade{}, fmt.Errorf("order %s is a %s order: %w", orderID, ord.Kind, ErrInvalidState)
	}
	height := e.heights.Height()
	if e.isExpired(ord, height) {
		return Trade{}, fmt.Errorf("order %s expired at height %d (now %d): %w", orderID, ord.ExpiryHeight, height, ErrExpired)
	}
	if e.balances[caller] < ord.Price {
		return Trade{}, fmt.Errorf("buyer balance %d below price %d: %w", e.balances[caller], ord.Price, ErrInsufficientFunds)
	}

	fee := Fee(ord.Price, e.feeRateBps)
	tradeID := deriveTradeID(orderID, caller, height)
	if _, exists := e.trades[tradeID]; exists {
		return Trade{}, fmt.Errorf("trade id collision for order %s", orderID)
	}

	// Buyer pays full price; seller nets price - fee; the fee accrues to
	// platform revenue until withdrawn by the authority.
	e.balances[caller] -= ord.Price
	e.balances[ord.Initiator] += ord.Price - fee
	e.platformRevenue += fee

	ord.Status = OrderStatusFilled

	trade := &Trade{
		ID:               tradeID,
		OrderID:          orderID,
		Buyer:            caller,
		Seller:           ord.Initiator,
		Asset:            ord.Asset,
		Price:            ord.Price,
		Fee:              fee,
		Height:           height,
		SettlementStatus: SettlementCompleted,
	}
	e.trades[tradeID] = trade

	e.pushTradePrice(ord.Asset, ord.Price, height)
	e.totalVolume += ord.Price
	e.bumpStats(caller, ord.Price, 0)
	e.bumpStats(ord.Initiator, ord.Price, fee)

	e.logger.Info("sell order settled",
		"order_id", orderID.String(),
		"trade_id", tradeID.String(),
		"price", ord.Price,
		"fee", fee,
		"height", height,
	)
	return *trade, nil
}

// ExecuteBuyOrder settles an active buy order: the caller is a seller
// releasing the escrowed funds. The supplied asset id must match the order's
// asset, guarding against execution against the wrong asset. Transferring the
// asset itself is the registry's responsibility, not performed here.
func (e *Exchange) ExecuteBuyOrder(ctx context.Context, caller uuid.UUID, orderID ID, asset ID) (Trade, error) {
	if caller == uuid.Nil {
		return Trade{}, fmt.Errorf("caller principal is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ord, ok := e.orders[orderID]
	if !ok {
		return Trade{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if ord.Status != OrderStatusActive {
		return Trade{}, fmt.Errorf("order %s is %s: %w", orderID, ord.Status, ErrInvalidState)
	}
	if ord.Kind != OrderKindBuy {
		return Trade{}, fmt.Errorf("order %s is a %s order: %w", orderID, ord.Kind, ErrInvalidState)
	}
	if ord.Asset != asset {
		return Trade{}, fmt.Errorf("asset %s does not match order asset %s: %w", asset, ord.Asset, ErrInvalidState)
	}
	height := e.heights.Height()
	if e.isExpired(ord, height) {
		return Trade{}, fmt.Errorf("order %s expired at height %d (now %d): %w", orderID, ord.ExpiryHeight, height, ErrExpired)
	}
	if e.custody < ord.Price {
		return Trade{}, fmt.Errorf("custody underflow settling order %s: held %d, need %d", orderID, e.custody, ord.Price)
	}

	fee := Fee(ord.Price, e.feeRateBps)
	tradeID := deriveTradeID(orderID, caller, height)
	if _, exists := e.trades[tradeID]; exists {
		return Trade{}, fmt.Errorf("trade id collision for order %s", orderID)
	}

	// Escrow disbursement: seller nets price - fee out of custody, the fee
	// accrues to platform revenue.
	e.custody -= ord.Price
	e.balances[caller] += ord.Price - fee
	e.platformRevenue += fee

	ord.Status = OrderStatusFilled

	trade := &Trade{
		ID:               tradeID,
		OrderID:          orderID,
		Buyer:            ord.Initiator,
		Seller:           caller,
		Asset:            ord.Asset,
		Price:            ord.Price,
		Fee:              fee,
		Height:           height,
		SettlementStatus: SettlementCompleted,
	}
	e.trades[tradeID] = trade

	e.totalVolume += ord.Price
	e.bumpStats(ord.Initiator, ord.Price, 0)
	e.bumpStats(caller, ord.Price, fee)

	e.logger.Info("buy order settled",
		"order_id", orderID.String(),
		"trade_id", tradeID.String(),
		"price", ord.Price,
		"fee", fee,
		"height", height,
	)
	return *trade, nil
}

// pushTradePrice records a sell-side settlement in the asset's valuation:
// last trade price is overwritten and the bounded history gains the new
// price, evicting the oldest entry past capacity. Administrative market
// valuation is left untouched.
func (e *Exchange) pushTradePrice(asset ID, price, height uint64) {
	v := e.valuations[asset]
	if v == nil {
		v = &AssetValuation{Asset: asset}
		e.valuations[asset] = v
	}
	v.LastTradePrice = price
	v.Height = height
	v.PriceHistory = append(v.PriceHistory, price)
	if len(v.PriceHistory) > PriceHistoryCap {
		v.PriceHistory = v.PriceHistory[len(v.PriceHistory)-PriceHistoryCap:]
	}
}
