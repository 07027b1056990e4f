package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

const defaultListLimit = 100

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS exchange_orders (
	id             TEXT PRIMARY KEY,
	initiator      UUID NOT NULL,
	asset_id       TEXT NOT NULL,
	price          NUMERIC(38,0) NOT NULL,
	kind           TEXT NOT NULL,
	status         TEXT NOT NULL,
	created_height BIGINT NOT NULL,
	expiry_height  BIGINT NOT NULL,
	conditions     TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_exchange_orders_initiator ON exchange_orders (initiator, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_exchange_orders_asset ON exchange_orders (asset_id);

CREATE TABLE IF NOT EXISTS exchange_trades (
	id                TEXT PRIMARY KEY,
	order_id          TEXT NOT NULL,
	buyer             UUID NOT NULL,
	seller            UUID NOT NULL,
	asset_id          TEXT NOT NULL,
	price             NUMERIC(38,0) NOT NULL,
	fee               NUMERIC(38,0) NOT NULL,
	height            BIGINT NOT NULL,
	settlement_status TEXT NOT NULL,
	settled_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_exchange_trades_asset ON exchange_trades (asset_id, settled_at DESC);
CREATE INDEX IF NOT EXISTS idx_exchange_trades_buyer ON exchange_trades (buyer);
CREATE INDEX IF NOT EXISTS idx_exchange_trades_seller ON exchange_trades (seller);

CREATE TABLE IF NOT EXISTS asset_valuations (
	asset_id         TEXT PRIMARY KEY,
	last_trade_price NUMERIC(38,0) NOT NULL DEFAULT 0,
	market_valuation NUMERIC(38,0) NOT NULL DEFAULT 0,
	height           BIGINT NOT NULL DEFAULT 0,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) UpsertOrder(ctx context.Context, order OrderRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO exchange_orders (id, initiator, asset_id, price, kind, status, created_height, expiry_height, conditions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = now()
	`, order.ID, order.Initiator, order.AssetID, order.Price, order.Kind, order.Status, order.CreatedHeight, order.ExpiryHeight, order.Conditions)
	return err
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE exchange_orders SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertTrade is idempotent on trade id so replayed events are harmless.
func (s *Store) InsertTrade(ctx context.Context, trade TradeRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO exchange_trades (id, order_id, buyer, seller, asset_id, price, fee, height, settlement_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, trade.ID, trade.OrderID, trade.Buyer, trade.Seller, trade.AssetID, trade.Price, trade.Fee, trade.Height, trade.SettlementStatus)
	return err
}

func (s *Store) UpsertValuation(ctx context.Context, valuation ValuationRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO asset_valuations (asset_id, last_trade_price, market_valuation, height, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (asset_id) DO UPDATE SET
			last_trade_price = EXCLUDED.last_trade_price,
			market_valuation = EXCLUDED.market_valuation,
			height = EXCLUDED.height,
			updated_at = now()
	`, valuation.AssetID, valuation.LastTradePrice, valuation.MarketValuation, valuation.Height)
	return err
}

// RecordTradePrice refreshes only the trade-derived columns, leaving any
// administratively set market valuation in place.
func (s *Store) RecordTradePrice(ctx context.Context, assetID string, lastTradePrice decimal.Decimal, height int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO asset_valuations (asset_id, last_trade_price, height, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (asset_id) DO UPDATE SET
			last_trade_price = EXCLUDED.last_trade_price,
			height = EXCLUDED.height,
			updated_at = now()
	`, assetID, lastTradePrice, height)
	return err
}

func (s *Store) GetOrder(ctx context.Context, id string) (*OrderRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, initiator, asset_id, price, kind, status, created_height, expiry_height, conditions, created_at, updated_at
		FROM exchange_orders
		WHERE id = $1
	`, id)

	var order OrderRecord
	if err := row.Scan(&order.ID, &order.Initiator, &order.AssetID, &order.Price, &order.Kind, &order.Status, &order.CreatedHeight, &order.ExpiryHeight, &order.Conditions, &order.CreatedAt, &order.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListOrdersByTrader(ctx context.Context, trader uuid.UUID, filter OrderFilter) ([]OrderRecord, error) {
	limit := filter.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	query := `
		SELECT id, initiator, asset_id, price, kind, status, created_height, expiry_height, conditions, created_at, updated_at
		FROM exchange_orders
		WHERE initiator = $1
	`
	args := []any{trader}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		query += ` AND status = $2`
	}
	if kind := strings.TrimSpace(filter.Kind); kind != "" {
		args = append(args, kind)
		query += ` AND kind = $` + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []OrderRecord
	for rows.Next() {
		var order OrderRecord
		if err := rows.Scan(&order.ID, &order.Initiator, &order.AssetID, &order.Price, &order.Kind, &order.Status, &order.CreatedHeight, &order.ExpiryHeight, &order.Conditions, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return orders, nil
}

func (s *Store) ListTradesByAsset(ctx context.Context, assetID string, limit int) ([]TradeRecord, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, buyer, seller, asset_id, price, fee, height, settlement_status, settled_at
		FROM exchange_trades
		WHERE asset_id = $1
		ORDER BY settled_at DESC
		LIMIT $2
	`, assetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *Store) ListTradesByTrader(ctx context.Context, trader uuid.UUID, limit int) ([]TradeRecord, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, buyer, seller, asset_id, price, fee, height, settlement_status, settled_at
		FROM exchange_trades
		WHERE buyer = $1 OR seller = $1
		ORDER BY settled_at DESC
		LIMIT $2
	`, trader, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *Store) GetValuation(ctx context.Context, assetID string) (*ValuationRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT asset_id, last_trade_price, market_valuation, height, updated_at
		FROM asset_valuations
		WHERE asset_id = $1
	`, assetID)

	var valuation ValuationRecord
	if err := row.Scan(&valuation.AssetID, &valuation.LastTradePrice, &valuation.MarketValuation, &valuation.Height, &valuation.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &valuation, nil
}

func scanTrades(rows pgx.Rows) ([]TradeRecord, error) {
	var trades []TradeRecord
	for rows.Next() {
		var trade TradeRecord
		if err := rows.Scan(&trade.ID, &trade.OrderID, &trade.Buyer, &trade.Seller, &trade.AssetID, &trade.Price, &trade.Fee, &trade.Height, &trade.SettlementStatus, &trade.SettledAt); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return trades, nil
}
