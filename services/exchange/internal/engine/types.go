package engine

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ID is an opaque 32-byte identifier used for orders, trades and assets.
type ID [32]byte

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ID) IsZero() bool {
	return id == ID{}
}

func ParseID(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("invalid id: expected %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

type OrderKind int

const (
	OrderKindSell OrderKind = iota
	OrderKindBuy
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindSell:
		return "sell"
	case OrderKindBuy:
		return "buy"
	default:
		return "unknown"
	}
}

func ParseOrderKind(s string) (OrderKind, error) {
	switch s {
	case "sell":
		return OrderKindSell, nil
	case "buy":
		return OrderKindBuy, nil
	default:
		return 0, fmt.Errorf("invalid order kind %q", s)
	}
}

type OrderStatus int

const (
	OrderStatusActive OrderStatus = iota
	OrderStatusFilled
	OrderStatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusActive:
		return "active"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type SettlementStatus int

const (
	// SettlementCompleted is the only settlement status today; partial and
	// multi-phase settlement are not modelled.
	SettlementCompleted SettlementStatus = iota
)

func (s SettlementStatus) String() string {
	if s == SettlementCompleted {
		return "completed"
	}
	return "unknown"
}

// Order is a standing offer to sell or buy one asset at a fixed price, valid
// until its expiry height. Orders are never deleted; terminal orders are kept
// for audit.
type Order struct {
	ID            ID
	Initiator     uuid.UUID
	Asset         ID
	Price         uint64
	Kind          OrderKind
	Status        OrderStatus
	CreatedHeight uint64
	ExpiryHeight  uint64
	Conditions    string
}

// Trade records a settled order execution. Created exactly once per order and
// immutable thereafter.
type Trade struct {
	ID               ID
	OrderID          ID
	Buyer            uuid.UUID
	Seller           uuid.UUID
	Asset            ID
	Price            uint64
	Fee              uint64
	Height           uint64
	SettlementStatus SettlementStatus
}

// AssetValuation tracks the last executed trade price and the administratively
// set market valuation for an asset. PriceHistory holds the most recent trade
// prices, oldest first, capped at PriceHistoryCap entries.
type AssetValuation struct {
	Asset           ID
	LastTradePrice  uint64
	MarketValuation uint64
	Height          uint64
	PriceHistory    []uint64
}

const PriceHistoryCap = 10

// TraderStats is cumulative per-principal bookkeeping updated at settlement.
// Volume and FeesPaid only ever grow. DiscountTier is carried for forward
// compatibility and is always zero; tiered fee discounts are not implemented.
type TraderStats struct {
	Trader       uuid.UUID
	Volume       uint64
	FeesPaid     uint64
	DiscountTier uint32
}

// Stats is the aggregate platform view returned by read-only queries.
type Stats struct {
	FeeRateBps      uint64
	TotalVolume     uint64
	PlatformRevenue uint64
	EscrowCustody   uint64
	OpenOrders      int
}
