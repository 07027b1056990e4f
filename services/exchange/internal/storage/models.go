package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderRecord is the journal projection of an order. The in-memory engine is
// authoritative; these rows exist for listing and audit.
type OrderRecord struct {
	ID            string
	Initiator     uuid.UUID
	AssetID       string
	Price         decimal.Decimal
	Kind          string
	Status        string
	CreatedHeight int64
	ExpiryHeight  int64
	Conditions    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type TradeRecord struct {
	ID               string
	OrderID          string
	Buyer            uuid.UUID
	Seller           uuid.UUID
	AssetID          string
	Price            decimal.Decimal
	Fee              decimal.Decimal
	Height           int64
	SettlementStatus string
	SettledAt        time.Time
}

type ValuationRecord struct {
	AssetID         string
	LastTradePrice  decimal.Decimal
	MarketValuation decimal.Decimal
	Height          int64
	UpdatedAt       time.Time
}

type OrderFilter struct {
	Status string
	Kind   string
	Limit  int
}
