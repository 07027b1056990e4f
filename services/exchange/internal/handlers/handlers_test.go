package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/engine"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/service"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/storage"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"log/slog"
)

var testSecret = []byte("test-secret")

type fakeService struct {
	order     engine.Order
	trade     engine.Trade
	valuation engine.AssetValuation
	stats     engine.Stats
	balance   uint64
	err       error

	lastInput  service.CreateOrderInput
	lastCaller uuid.UUID
}

func (f *fakeService) CreateSellOrder(_ context.Context, input service.CreateOrderInput) (engine.Order, error) {
	f.lastInput = input
	return f.order, f.err
}

func (f *fakeService) CreateBuyOrder(_ context.Context, input service.CreateOrderInput) (engine.Order, error) {
	f.lastInput = input
	return f.order, f.err
}

func (f *fakeService) CancelOrder(_ context.Context, caller uuid.UUID, _ engine.ID, _ string) (engine.Order, error) {
	f.lastCaller = caller
	return f.order, f.err
}

func (f *fakeService) ExecuteSellOrder(_ context.Context, caller uuid.UUID, _ engine.ID, _ string) (engine.Trade, error) {
	f.lastCaller = caller
	return f.trade, f.err
}

func (f *fakeService) ExecuteBuyOrder(_ context.Context, caller uuid.UUID, _ engine.ID, _ engine.ID, _ string) (engine.Trade, error) {
	f.lastCaller = caller
	return f.trade, f.err
}

func (f *fakeService) Deposit(_ uuid.UUID, amount uint64) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.balance += amount
	return f.balance, nil
}

func (f *fakeService) Balance(_ uuid.UUID) uint64 { return f.balance }

func (f *fakeService) SetFeeRate(caller uuid.UUID, _ uint64) error {
	f.lastCaller = caller
	return f.err
}

func (f *fakeService) WithdrawRevenue(_ uuid.UUID, amount uint64) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return amount, nil
}

func (f *fakeService) UpdateAssetValuation(_ uuid.UUID, _ engine.ID, _ uint64) (engine.AssetValuation, error) {
	return f.valuation, f.err
}

func (f *fakeService) Order(engine.ID) (engine.Order, error)    { return f.order, f.err }
func (f *fakeService) Trade(engine.ID) (engine.Trade, error)    { return f.trade, f.err }
func (f *fakeService) Valuation(engine.ID) (engine.AssetValuation, error) {
	return f.valuation, f.err
}
func (f *fakeService) TraderStats(trader uuid.UUID) (engine.TraderStats, error) {
	return engine.TraderStats{Trader: trader}, f.err
}
func (f *fakeService) Stats() engine.Stats { return f.stats }

type fakeJournal struct {
	orders []storage.OrderRecord
	trades []storage.TradeRecord
	err    error
}

func (f *fakeJournal) ListOrdersByTrader(_ context.Context, _ uuid.UUID, _ storage.OrderFilter) ([]storage.OrderRecord, error) {
	return f.orders, f.err
}

func (f *fakeJournal) ListTradesByAsset(_ context.Context, _ string, _ int) ([]storage.TradeRecord, error) {
	return f.trades, f.err
}

func (f *fakeJournal) ListTradesByTrader(_ context.Context, _ uuid.UUID, _ int) ([]storage.TradeRecord, error) {
	return f.trades, f.err
}

func setupRouter(t *testing.T, svc ExchangeAPI, journal Journal) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(svc, journal, slog.Default()).Register(r, testSecret)
	return r
}

func authedRequest(t *testing.T, principal uuid.UUID, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	token, err := testutil.GenerateJWT(principal, testSecret, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("generate jwt: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sampleEngineOrder(initiator uuid.UUID) engine.Order {
	return engine.Order{
		ID:            engine.ID(sha256.Sum256([]byte("order"))),
		Initiator:     initiator,
		Asset:         engine.ID(sha256.Sum256([]byte("asset"))),
		Price:         1000,
		Kind:          engine.OrderKindSell,
		Status:        engine.OrderStatusActive,
		CreatedHeight: 100,
		ExpiryHeight:  5860,
	}
}

func TestCreateSellOrder(t *testing.T) {
	principal := uuid.New()
	svc := &fakeService{order: sampleEngineOrder(principal)}
	r := setupRouter(t, svc, nil)

	asset := engine.ID(sha256.Sum256([]byte("asset")))
	w := httptest.NewRecorder()
	req := authedRequest(t, principal, http.MethodPost, "/orders/sell", gin.H{
		"asset_id": asset.String(),
		"price":    "1000",
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if svc.lastInput.Price != 1000 {
		t.Fatalf("expected price 1000, got %d", svc.lastInput.Price)
	}
	if svc.lastInput.Initiator != principal {
		t.Fatalf("expected principal as initiator")
	}

	var resp orderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Kind != "sell" || resp.Price != "1000" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateOrderRejectsFractionalPrice(t *testing.T) {
	principal := uuid.New()
	svc := &fakeService{}
	r := setupRouter(t, svc, nil)

	asset := engine.ID(sha256.Sum256([]byte("asset")))
	w := httptest.NewRecorder()
	req := authedRequest(t, principal, http.MethodPost, "/orders/buy", gin.H{
		"asset_id": asset.String(),
		"price":    "10.5",
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateOrderRequiresToken(t *testing.T) {
	r := setupRouter(t, &fakeService{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/sell", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestExecuteSellOrderErrorMapping(t *testing.T) {
	orderID := engine.ID(sha256.Sum256([]byte("order")))
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", engine.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"insufficient funds", engine.ErrInsufficientFunds, http.StatusBadRequest, "INSUFFICIENT_FUNDS"},
		{"expired", engine.ErrExpired, http.StatusBadRequest, "ORDER_EXPIRED"},
		{"already filled", engine.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouter(t, &fakeService{err: tc.err}, nil)

			w := httptest.NewRecorder()
			req := authedRequest(t, uuid.New(), http.MethodPost, "/orders/"+orderID.String()+"/execute-sell", nil)
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, resp.Code)
			}
		})
	}
}

func TestCancelOrderForbidden(t *testing.T) {
	orderID := engine.ID(sha256.Sum256([]byte("order")))
	r := setupRouter(t, &fakeService{err: engine.ErrNotAuthorized}, nil)

	w := httptest.NewRecorder()
	req := authedRequest(t, uuid.New(), http.MethodDelete, "/orders/"+orderID.String(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestListOrdersFromJournal(t *testing.T) {
	principal := uuid.New()
	journal := &fakeJournal{orders: []storage.OrderRecord{
		{
			ID:        "order-1",
			Initiator: principal,
			AssetID:   "asset-1",
			Price:     decimal.NewFromInt(1000),
			Kind:      "sell",
			Status:    "active",
		},
	}}
	r := setupRouter(t, &fakeService{}, journal)

	w := httptest.NewRecorder()
	req := authedRequest(t, principal, http.MethodGet, "/orders?status=active", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Orders []map[string]any `json:"orders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(resp.Orders))
	}
	if resp.Orders[0]["price"] != "1000" {
		t.Fatalf("expected price 1000, got %v", resp.Orders[0]["price"])
	}
}

func TestDepositAndBalance(t *testing.T) {
	principal := uuid.New()
	svc := &fakeService{}
	r := setupRouter(t, svc, nil)

	w := httptest.NewRecorder()
	req := authedRequest(t, principal, http.MethodPost, "/funds/deposit", gin.H{"amount": "5000"})
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = authedRequest(t, principal, http.MethodGet, "/funds/balance", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Balance != "5000" {
		t.Fatalf("expected balance 5000, got %s", resp.Balance)
	}
}

func TestSetFeeRateForbiddenForNonAuthority(t *testing.T) {
	r := setupRouter(t, &fakeService{err: engine.ErrNotAuthorized}, nil)

	w := httptest.NewRecorder()
	req := authedRequest(t, uuid.New(), http.MethodPut, "/admin/fee-rate", gin.H{"rate_bps": 300})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestSetFeeRateRejectsExcessiveRate(t *testing.T) {
	r := setupRouter(t, &fakeService{err: engine.ErrInvalidRate}, nil)

	w := httptest.NewRecorder()
	req := authedRequest(t, uuid.New(), http.MethodPut, "/admin/fee-rate", gin.H{"rate_bps": 1001})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetValuation(t *testing.T) {
	asset := engine.ID(sha256.Sum256([]byte("asset")))
	svc := &fakeService{valuation: engine.AssetValuation{
		Asset:           asset,
		LastTradePrice:  1100,
		MarketValuation: 1500,
		Height:          110,
		PriceHistory:    []uint64{900, 1000, 1100},
	}}
	r := setupRouter(t, svc, nil)

	w := httptest.NewRecorder()
	req := authedRequest(t, uuid.New(), http.MethodGet, "/assets/"+asset.String()+"/valuation", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp valuationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.LastTradePrice != "1100" || resp.MarketValuation != "1500" {
		t.Fatalf("unexpected valuation: %+v", resp)
	}
	if len(resp.PriceHistory) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(resp.PriceHistory))
	}
}
