package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateSellOrder posts an offer to sell an asset at a fixed price. The
// caller must own the referenced asset in the registry. Sell orders hold
// nothing in custody; settlement moves the buyer's funds directly.
func (e *Exchange) CreateSellOrder(ctx context.Context, seller uuid.UUID, asset ID, price, expiresIn uint64, conditions string) (Order, error) {
	if err := validateOrderInput(seller, asset, price, conditions); err != nil {
		return Order{}, err
	}

	// Registry lookups are preconditions only; they run before the
	// critical section so the mutex is never held across I/O.
	exists, err := e.registry.AssetExists(ctx, asset)
	if err != nil {
		return Order{}, fmt.Errorf("registry lookup: %w", err)
	}
	if !exists {
		return Order{}, fmt.Errorf("asset %s: %w", asset, ErrNotFound)
	}
	owner, err := e.registry.OwnershipOf(ctx, asset)
	if err != nil {
		return Order{}, fmt.Errorf("registry ownership lookup: %w", err)
	}
	if owner != seller {
		return Order{}, fmt.Errorf("asset %s not owned by caller: %w", asset, ErrNotAuthorized)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insertOrder(seller, asset, price, expiresIn, conditions, OrderKindSell)
}

// CreateBuyOrder posts an offer to buy an asset at a fixed price and deposits
// the full price into pooled escrow custody atomically with creation. The
// funds stay attributed to the order until it is filled or cancelled.
func (e *Exchange) CreateBuyOrder(ctx context.Context, buyer uuid.UUID, asset ID, price, expiresIn uint64, conditions string) (Order, error) {
	if err := validateOrderInput(buyer, asset, price, conditions); err != nil {
		return Order{}, err
	}

	exists, err := e.registry.AssetExists(ctx, asset)
	if err != nil {
		return Order{}, fmt.Errorf("registry lookup: %w", err)
	}
	if !exists {
		return Order{}, fmt.Errorf("asset %s: %w", asset, ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.balances[buyer] < price {
		return Order{}, fmt.Errorf("escrow deposit of %d: %w", price, ErrInsufficientFunds)
	}

	ord, err := e.insertOrder(buyer, asset, price, expiresIn, conditions, OrderKindBuy)
	if err != nil {
		return Order{}, err
	}

	e.balances[buyer] -= price
	e.custody += price
	return ord, nil
}

// CancelOrder voids an active order. Only the initiator may cancel. Buy
// orders get their escrowed price refunded in full; sell orders are a pure
// status flip.
func (e *Exchange) CancelOrder(ctx context.Context, caller uuid.UUID, orderID ID) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ord, ok := e.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if ord.Initiator != caller {
		return Order{}, fmt.Errorf("order %s belongs to another principal: %w", orderID, ErrNotAuthorized)
	}
	if ord.Status != OrderStatusActive {
		return Order{}, fmt.Errorf("order %s is %s: %w", orderID, ord.Status, ErrInvalidState)
	}

	if ord.Kind == OrderKindBuy {
		if e.custody < ord.Price {
			return Order{}, fmt.Errorf("custody underflow refunding order %s: held %d, need %d", orderID, e.custody, ord.Price)
		}
		e.custody -= ord.Price
		e.balances[ord.Initiator] += ord.Price
	}
	ord.Status = OrderStatusCancelled

	e.logger.Info("order cancelled",
		"order_id", orderID.String(),
		"kind", ord.Kind.String(),
		"refund", ord.Kind == OrderKindBuy,
	)
	return *ord, nil
}

func (e *Exchange) insertOrder(initiator uuid.UUID, asset ID, price, expiresIn uint64, conditions string, kind OrderKind) (Order, error) {
	if expiresIn == 0 {
		expiresIn = defaultExpiryBlocks
	}
	height := e.heights.Height()
	e.orderSeq++
	id := deriveOrderID(initiator, asset, e.orderSeq, height)
	if _, exists := e.orders[id]; exists {
		return Order{}, fmt.Errorf("order %s: %w", id, ErrDuplicateOrder)
	}

	ord := &Order{
		ID:            id,
		Initiator:     initiator,
		Asset:         asset,
		Price:         price,
		Kind:          kind,
		Status:        OrderStatusActive,
		CreatedHeight: height,
		ExpiryHeight:  height + expiresIn,
		Conditions:    conditions,
	}
	e.orders[id] = ord

	e.logger.Info("order created",
		"order_id", id.String(),
		"kind", kind.String(),
		"asset", asset.String(),
		"price", price,
		"expiry_height", ord.ExpiryHeight,
	)
	return *ord, nil
}

func validateOrderInput(initiator uuid.UUID, asset ID, price uint64, conditions string) error {
	if initiator == uuid.Nil {
		return fmt.Errorf("initiator principal is required")
	}
	if asset.IsZero() {
		return fmt.Errorf("asset id is required")
	}
	if price == 0 {
		return fmt.Errorf("price must be positive: %w", ErrInvalidPrice)
	}
	if len(conditions) > maxConditionsLen {
		return fmt.Errorf("conditions exceed %d bytes: %w", maxConditionsLen, ErrConditionsTooLong)
	}
	return nil
}

func (e *Exchange) isExpired(ord *Order, height uint64) bool {
	return height > ord.ExpiryHeight
}
