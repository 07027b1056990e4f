// Package engine implements the order lifecycle and escrow-settlement core of
// the exchange: order creation and custody, sell- and buy-side execution,
// cancellation and refund, fee accrual, and the trade-history, valuation and
// trader-stats bookkeeping that must stay consistent with fund movement.
//
// The execution model is sequential single-writer: one mutex serializes every
// state-mutating operation, so each operation observes and commits a fully
// consistent state. Nothing in here blocks or performs I/O beyond the asset
// registry lookups done before any mutation.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"log/slog"
)

// AssetRegistry is the collaborator owning asset identity and ownership
// records. The core only consults it; registration and transfers are out of
// scope here.
type AssetRegistry interface {
	OwnershipOf(ctx context.Context, asset ID) (uuid.UUID, error)
	AssetExists(ctx context.Context, asset ID) (bool, error)
}

const (
	maxConditionsLen = 256

	// defaultExpiryBlocks applies when an order is created without an
	// explicit expiry duration.
	defaultExpiryBlocks = 5760
)

// Exchange owns all exchange state: the order store, the pooled escrow
// custody, spendable balances, trade history, valuations and trader stats.
// The authority principal is fixed at construction and gates the
// administrative surface.
type Exchange struct {
	mu sync.Mutex

	authority  uuid.UUID
	feeRateBps uint64

	totalVolume     uint64
	platformRevenue uint64
	orderSeq        uint64

	// custody is the pooled balance of funds deposited for active buy
	// orders. Each active buy order accounts for exactly its price, so the
	// sum of active buy-order prices never exceeds custody.
	custody  uint64
	balances map[uuid.UUID]uint64

	orders      map[ID]*Order
	trades      map[ID]*Trade
	valuations  map[ID]*AssetValuation
	traderStats map[uuid.UUID]*TraderStats

	registry AssetRegistry
	heights  HeightProvider
	logger   *slog.Logger
}

func NewExchange(authority uuid.UUID, feeRateBps uint64, registry AssetRegistry, heights HeightProvider, logger *slog.Logger) (*Exchange, error) {
	if authority == uuid.Nil {
		return nil, fmt.Errorf("authority principal is required")
	}
	if feeRateBps > MaxFeeRateBps {
		return nil, fmt.Errorf("fee rate %d bps: %w", feeRateBps, ErrInvalidRate)
	}
	if registry == nil {
		return nil, fmt.Errorf("asset registry is required")
	}
	if heights == nil {
		return nil, fmt.Errorf("height provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exchange{
		authority:   authority,
		feeRateBps:  feeRateBps,
		balances:    make(map[uuid.UUID]uint64),
		orders:      make(map[ID]*Order),
		trades:      make(map[ID]*Trade),
		valuations:  make(map[ID]*AssetValuation),
		traderStats: make(map[uuid.UUID]*TraderStats),
		registry:    registry,
		heights:     heights,
		logger:      logger,
	}, nil
}

func (e *Exchange) Authority() uuid.UUID {
	return e.authority
}

// Deposit credits a principal's spendable balance. This is the funding hook
// the host platform calls when value enters the exchange's ledger.
func (e *Exchange) Deposit(principal uuid.UUID, amount uint64) (uint64, error) {
	if principal == uuid.Nil {
		return 0, fmt.Errorf("principal is required")
	}
	if amount == 0 {
		return 0, fmt.Errorf("deposit amount must be positive: %w", ErrInvalidAmount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[principal] += amount
	return e.balances[principal], nil
}

func (e *Exchange) Balance(principal uuid.UUID) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[principal]
}

// SetFeeRate changes the platform trading fee. Authority only; rate is
// bounded at configuration time, not at fee calculation time.
func (e *Exchange) SetFeeRate(caller uuid.UUID, rateBps uint64) error {
	if caller != e.authority {
		return fmt.Errorf("set fee rate: %w", ErrNotAuthorized)
	}
	if rateBps > MaxFeeRateBps {
		return fmt.Errorf("fee rate %d bps exceeds %d: %w", rateBps, MaxFeeRateBps, ErrInvalidRate)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feeRateBps = rateBps
	e.logger.Info("fee rate updated", "rate_bps", rateBps)
	return nil
}

// WithdrawRevenue pays accumulated platform revenue out to the authority's
// spendable balance.
func (e *Exchange) WithdrawRevenue(caller uuid.UUID, amount uint64) (uint64, error) {
	if caller != e.authority {
		return 0, fmt.Errorf("withdraw revenue: %w", ErrNotAuthorized)
	}
	if amount == 0 {
		return 0, fmt.Errorf("withdrawal amount must be positive: %w", ErrInvalidAmount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount > e.platformRevenue {
		return 0, fmt.Errorf("withdraw %d of %d revenue: %w", amount, e.platformRevenue, ErrInsufficientFunds)
	}
	e.platformRevenue -= amount
	e.balances[e.authority] += amount
	e.logger.Info("revenue withdrawn", "amount", amount, "remaining", e.platformRevenue)
	return e.platformRevenue, nil
}

// UpdateAssetValuation sets the administrative market valuation for an asset.
// Trade-driven fields (last trade price, price history) are preserved; the
// two update paths never clobber each other.
func (e *Exchange) UpdateAssetValuation(caller uuid.UUID, asset ID, newValuation uint64) (AssetValuation, error) {
	if caller != e.authority {
		return AssetValuation{}, fmt.Errorf("update valuation: %w", ErrNotAuthorized)
	}
	if asset.IsZero() {
		return AssetValuation{}, fmt.Errorf("asset id is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.valuations[asset]
	if v == nil {
		v = &AssetValuation{Asset: asset}
		e.valuations[asset] = v
	}
	v.MarketValuation = newValuation
	v.Height = e.heights.Height()
	return copyValuation(v), nil
}

func (e *Exchange) Order(id ID) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ord, ok := e.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return *ord, nil
}

func (e *Exchange) Trade(id ID) (Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tr, ok := e.trades[id]
	if !ok {
		return Trade{}, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	return *tr, nil
}

func (e *Exchange) Valuation(asset ID) (AssetValuation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.valuations[asset]
	if !ok {
		return AssetValuation{}, fmt.Errorf("valuation for asset %s: %w", asset, ErrNotFound)
	}
	return copyValuation(v), nil
}

func (e *Exchange) TraderStats(trader uuid.UUID) (TraderStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.traderStats[trader]
	if !ok {
		return TraderStats{}, fmt.Errorf("stats for trader %s: %w", trader, ErrNotFound)
	}
	return *st, nil
}

func (e *Exchange) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	open := 0
	for _, ord := range e.orders {
		if ord.Status == OrderStatusActive {
			open++
		}
	}
	return Stats{
		FeeRateBps:      e.feeRateBps,
		TotalVolume:     e.totalVolume,
		PlatformRevenue: e.platformRevenue,
		EscrowCustody:   e.custody,
		OpenOrders:      open,
	}
}

func copyValuation(v *AssetValuation) AssetValuation {
	out := *v
	out.PriceHistory = append([]uint64(nil), v.PriceHistory...)
	return out
}

func (e *Exchange) bumpStats(trader uuid.UUID, volume, fees uint64) {
	st := e.traderStats[trader]
	if st == nil {
		st = &TraderStats{Trader: trader}
		e.traderStats[trader] = st
	}
	st.Volume += volume
	st.FeesPaid += fees
}

// deriveOrderID hashes the order's logical inputs together with a
// monotonically increasing sequence number and the current height, so two
// orders from the same principal for the same asset never collide.
func deriveOrderID(initiator uuid.UUID, asset ID, seq, height uint64) ID {
	h := sha256.New()
	h.Write([]byte("order/"))
	h.Write(initiator[:])
	h.Write(asset[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], height)
	h.Write(buf[:])
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

func deriveTradeID(orderID ID, counterparty uuid.UUID, height uint64) ID {
	h := sha256.New()
	h.Write([]byte("trade/"))
	h.Write(orderID[:])
	h.Write(counterparty[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	h.Write(buf[:])
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}
