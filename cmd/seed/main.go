package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Seeds the journal with demo orders and trades for local development.
// Refuses to run outside dev and test environments.
func main() {
	env := getEnv("DSX_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: DSX_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "dsx_exchange")
	user := getEnv("POSTGRES_USER", "dsx")
	password := getEnv("POSTGRES_PASSWORD", "dsx")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	fmt.Println("Seeding journal...")

	if err := seedJournal(ctx, pool); err != nil {
		log.Fatalf("seed journal: %v", err)
	}
	fmt.Println("✓ Journal seeded")
}

func seedJournal(ctx context.Context, pool *pgxpool.Pool) error {
	demoSeller := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	demoBuyer := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	for i, row := range demoOrders(demoSeller) {
		if _, err := pool.Exec(ctx, `
			INSERT INTO exchange_orders (id, initiator, asset_id, price, kind, status, created_height, expiry_height, conditions)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, row.id, row.initiator, row.assetID, row.price, row.kind, row.status, row.createdHeight, row.expiryHeight, ""); err != nil {
			return fmt.Errorf("seed order %d: %w", i, err)
		}
	}

	for i, row := range demoTrades(demoBuyer, demoSeller) {
		if _, err := pool.Exec(ctx, `
			INSERT INTO exchange_trades (id, order_id, buyer, seller, asset_id, price, fee, height, settlement_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, row.id, row.orderID, row.buyer, row.seller, row.assetID, row.price, row.fee, row.height, "completed"); err != nil {
			return fmt.Errorf("seed trade %d: %w", i, err)
		}
	}

	return nil
}

type orderRow struct {
	id            string
	initiator     uuid.UUID
	assetID       string
	price         decimal.Decimal
	kind          string
	status        string
	createdHeight int64
	expiryHeight  int64
}

type tradeRow struct {
	id      string
	orderID string
	buyer   uuid.UUID
	seller  uuid.UUID
	assetID string
	price   decimal.Decimal
	fee     decimal.Decimal
	height  int64
}

func demoOrders(seller uuid.UUID) []orderRow {
	return []orderRow{
		{
			id:            "5eed000000000000000000000000000000000000000000000000000000000001",
			initiator:     seller,
			assetID:       "a55e700000000000000000000000000000000000000000000000000000000001",
			price:         decimal.NewFromInt(1_000_000),
			kind:          "sell",
			status:        "active",
			createdHeight: 100,
			expiryHeight:  5860,
		},
		{
			id:            "5eed000000000000000000000000000000000000000000000000000000000002",
			initiator:     seller,
			assetID:       "a55e700000000000000000000000000000000000000000000000000000000002",
			price:         decimal.NewFromInt(2_500_000),
			kind:          "sell",
			status:        "filled",
			createdHeight: 90,
			expiryHeight:  5850,
		},
	}
}

func demoTrades(buyer, seller uuid.UUID) []tradeRow {
	return []tradeRow{
		{
			id:      "712ade0000000000000000000000000000000000000000000000000000000001",
			orderID: "5eed000000000000000000000000000000000000000000000000000000000002",
			buyer:   buyer,
			seller:  seller,
			assetID: "a55e700000000000000000000000000000000000000000000000000000000002",
			price:   decimal.NewFromInt(2_500_000),
			fee:     decimal.NewFromInt(62_500),
			height:  95,
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
