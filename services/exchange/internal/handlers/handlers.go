package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bellaamanda2500291/decentralized-space-asset-trading/libs/auth"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/engine"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/service"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"log/slog"
)

// ExchangeAPI is the slice of the service layer the HTTP surface needs.
type ExchangeAPI interface {
	CreateSellOrder(ctx context.Context, input service.CreateOrderInput) (engine.Order, error)
	CreateBuyOrder(ctx context.Context, input service.CreateOrderInput) (engine.Order, error)
	CancelOrder(ctx context.Context, caller uuid.UUID, orderID engine.ID, correlationID string) (engine.Order, error)
	ExecuteSellOrder(ctx context.Context, caller uuid.UUID, orderID engine.ID, correlationID string) (engine.Trade, error)
	ExecuteBuyOrder(ctx context.Context, caller uuid.UUID, orderID engine.ID, asset engine.ID, correlationID string) (engine.Trade, error)
	Deposit(principal uuid.UUID, amount uint64) (uint64, error)
	Balance(principal uuid.UUID) uint64
	SetFeeRate(caller uuid.UUID, rateBps uint64) error
	WithdrawRevenue(caller uuid.UUID, amount uint64) (uint64, error)
	UpdateAssetValuation(caller uuid.UUID, asset engine.ID, newValuation uint64) (engine.AssetValuation, error)
	Order(id engine.ID) (engine.Order, error)
	Trade(id engine.ID) (engine.Trade, error)
	Valuation(asset engine.ID) (engine.AssetValuation, error)
	TraderStats(trader uuid.UUID) (engine.TraderStats, error)
	Stats() engine.Stats
}

// Journal serves the listing queries backed by postgres.
type Journal interface {
	ListOrdersByTrader(ctx context.Context, trader uuid.UUID, filter storage.OrderFilter) ([]storage.OrderRecord, error)
	ListTradesByAsset(ctx context.Context, assetID string, limit int) ([]storage.TradeRecord, error)
	ListTradesByTrader(ctx context.Context, trader uuid.UUID, limit int) ([]storage.TradeRecord, error)
}

type Handler struct {
	Service ExchangeAPI
	Journal Journal
	Logger  *slog.Logger
}

func New(service ExchangeAPI, journal Journal, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: service, Journal: journal, Logger: logger}
}

func (h *Handler) Register(r *gin.Engine, jwtSecret []byte) {
	group := r.Group("/", auth.Middleware(jwtSecret))

	group.POST("/orders/sell", h.CreateSellOrder)
	group.POST("/orders/buy", h.CreateBuyOrder)
	group.POST("/orders/:id/execute-sell", h.ExecuteSellOrder)
	group.POST("/orders/:id/execute-buy", h.ExecuteBuyOrder)
	group.DELETE("/orders/:id", h.CancelOrder)
	group.GET("/orders/:id", h.GetOrder)
	group.GET("/orders", h.ListOrders)

	group.GET("/trades/:id", h.GetTrade)
	group.GET("/trades", h.ListTrades)

	group.GET("/assets/:id/valuation", h.GetValuation)
	group.PUT("/assets/:id/valuation", h.UpdateValuation)

	group.GET("/traders/me/stats", h.MyStats)
	group.GET("/stats", h.PlatformStats)

	group.POST("/funds/deposit", h.Deposit)
	group.GET("/funds/balance", h.GetBalance)

	group.PUT("/admin/fee-rate", h.SetFeeRate)
	group.POST("/admin/withdraw", h.WithdrawRevenue)
}

type createOrderRequest struct {
	AssetID    string `json:"asset_id"`
	Price      string `json:"price"`
	ExpiresIn  uint64 `json:"expires_in_blocks"`
	Conditions string `json:"conditions"`
}

type orderResponse struct {
	OrderID       string `json:"order_id"`
	Initiator     string `json:"initiator"`
	AssetID       string `json:"asset_id"`
	Price         string `json:"price"`
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	CreatedHeight uint64 `json:"created_height"`
	ExpiryHeight  uint64 `json:"expiry_height"`
	Conditions    string `json:"conditions,omitempty"`
}

type tradeResponse struct {
	TradeID          string `json:"trade_id"`
	OrderID          string `json:"order_id"`
	Buyer            string `json:"buyer"`
	Seller           string `json:"seller"`
	AssetID          string `json:"asset_id"`
	Price            string `json:"price"`
	Fee              string `json:"fee"`
	Height           uint64 `json:"height"`
	SettlementStatus string `json:"settlement_status"`
}

type valuationResponse struct {
	AssetID         string   `json:"asset_id"`
	LastTradePrice  string   `json:"last_trade_price"`
	MarketValuation string   `json:"market_valuation"`
	Height          uint64   `json:"height"`
	PriceHistory    []string `json:"price_history"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}

func (h *Handler) CreateSellOrder(c *gin.Context) {
	h.createOrder(c, h.Service.CreateSellOrder)
}

func (h *Handler) CreateBuyOrder(c *gin.Context) {
	h.createOrder(c, h.Service.CreateBuyOrder)
}

func (h *Handler) createOrder(c *gin.Context, create func(context.Context, service.CreateOrderInput) (engine.Order, error)) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	asset, err := engine.ParseID(strings.TrimSpace(req.AssetID))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid asset_id")
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid price")
		return
	}

	order, err := create(c.Request.Context(), service.CreateOrderInput{
		Initiator:     principal,
		Asset:         asset,
		Price:         price,
		ExpiresIn:     req.ExpiresIn,
		Conditions:    strings.TrimSpace(req.Conditions),
		CorrelationID: requestIDFromContext(c),
	})
	if err != nil {
		h.writeEngineError(c, err, "create order")
		return
	}

	c.JSON(http.StatusCreated, orderToResponse(order))
}

func (h *Handler) ExecuteSellOrder(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}
	orderID, err := engine.ParseID(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid order id")
		return
	}

	trade, err := h.Service.ExecuteSellOrder(c.Request.Context(), principal, orderID, requestIDFromContext(c))
	if err != nil {
		h.writeEngineError(c, err, "execute sell order")
		return
	}
	c.JSON(http.StatusOK, tradeToResponse(trade))
}

type executeBuyRequest struct {
	AssetID string `json:"asset_id"`
}

func (h *Handler) ExecuteBuyOrder(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}
	orderID, err := engine.ParseID(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid order id")
		return
	}

	var req executeBuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	asset, err := engine.ParseID(strings.TrimSpace(req.AssetID))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid asset_id")
		return
	}

	trade, err := h.Service.ExecuteBuyOrder(c.Request.Context(), principal, orderID, asset, requestIDFromContext(c))
	if err != nil {
		h.writeEngineError(c, err, "execute buy order")
		return
	}
	c.JSON(http.StatusOK, tradeToResponse(trade))
}

func (h *Handler) CancelOrder(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}
	orderID, err := engine.ParseID(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid order id")
		return
	}

	order, err := h.Service.CancelOrder(c.Request.Context(), principal, orderID, requestIDFromContext(c))
	if err != nil {
		h.writeEngineError(c, err, "cancel order")
		return
	}
	c.JSON(http.StatusOK, orderToResponse(order))
}

func (h *Handler) GetOrder(c *gin.Context) {
	orderID, err := engine.ParseID(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid order id")
		return
	}
	order, err := h.Service.Order(orderID)
	if err != nil {
		h.writeEngineError(c, err, "get order")
		return
	}
	c.JSON(http.StatusOK, orderToResponse(order))
}

func (h *Handler) ListOrders(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}
	if h.Journal == nil {
		writeError(c, http.StatusServiceUnavailable, "UNAVAILABLE", "journal not available")
		return
	}

	filter := storage.OrderFilter{
		Status: strings.ToLower(strings.TrimSpace(c.Query("status"))),
		Kind:   strings.ToLower(strings.TrimSpace(c.Query("kind"))),
	}
	if limitStr := strings.TrimSpace(c.Query("limit")); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid limit")
			return
		}
		filter.Limit = n
	}

	orders, err := h.Journal.ListOrdersByTrader(c.Request.Context(), principal, filter)
	if err != nil {
		h.Logger.Error("list orders failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}

	items := make([]gin.H, 0, len(orders))
	for _, order := range orders {
		items = append(items, orderRecordToItem(order))
	}
	c.JSON(http.StatusOK, gin.H{"orders": items})
}

func (h *Handler) GetTrade(c *gin.Context) {
	tradeID, err := engine.ParseID(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid trade id")
		return
	}
	trade, err := h.Service.Trade(tradeID)
	if err != nil {
		h.writeEngineError(c, err, "get trade")
		return
	}
	c.JSON(http.StatusOK, tradeToResponse(trade))
}

func (h *Handler) ListTrades(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}
	if h.Journal == nil {
		writeError(c, http.StatusServiceUnavailable, "UNAVAILABLE", "journal not available")
		return
	}

	limit := 0
	if limitStr := strings.TrimSpace(c.Query("limit")); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid limit")
			return
		}
		limit = n
	}

	var (
		trades []storage.TradeRecord
		err    error
	)
	if assetID := strings.TrimSpace(c.Query("asset_id")); assetID != "" {
		trades, err = h.Journal.ListTradesByAsset(c.Request.Context(), assetID, limit)
	} else {
		trades, err = h.Journal.ListTradesByTrader(c.Request.Context(), principal, limit)
	}
	if err != nil {
		h.Logger.Error("list trades failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}

	items := make([]gin.H, 0, len(trades))
	for _, trade := range trades {
		items = append(items, tradeRecordToItem(trade))
	}
	c.JSON(http.StatusOK, gin.H{"trades": items})
}

func (h *Handler) GetValuation(c *gin.Context) {
	asset, err := engine.ParseID(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid asset id")
		return
	}
	valuation, err := h.Service.Valuation(asset)
	if err != nil {
		h.writeEngineError(c, err, "get valuation")
		return
	}
	c.JSON(http.StatusOK, valuationToResponse(valuation))
}

type updateValuationRequest struct {
	MarketValuation string `json:"market_valuation"`
}

func (h *Handler) UpdateValuation(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}
	asset, err := engine.ParseID(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid asset id")
		return
	}

	var req updateValuationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	valuation, err := parseAmount(req.MarketValuation)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid market_valuation")
		return
	}

	updated, err := h.Service.UpdateAssetValuation(principal, asset, valuation)
	if err != nil {
		h.writeEngineError(c, err, "update valuation")
		return
	}
	c.JSON(http.StatusOK, valuationToResponse(updated))
}

func (h *Handler) MyStats(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}
	stats, err := h.Service.TraderStats(principal)
	if err != nil {
		h.writeEngineError(c, err, "trader stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trader":        stats.Trader.String(),
		"volume":        strconv.FormatUint(stats.Volume, 10),
		"fees_paid":     strconv.FormatUint(stats.FeesPaid, 10),
		"discount_tier": stats.DiscountTier,
	})
}

func (h *Handler) PlatformStats(c *gin.Context) {
	stats := h.Service.Stats()
	c.JSON(http.StatusOK, gin.H{
		"fee_rate_bps":     stats.FeeRateBps,
		"total_volume":     strconv.FormatUint(stats.TotalVolume, 10),
		"platform_revenue": strconv.FormatUint(stats.PlatformRevenue, 10),
		"escrow_custody":   strconv.FormatUint(stats.EscrowCustody, 10),
		"open_orders":      stats.OpenOrders,
	})
}

type depositRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) Deposit(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid amount")
		return
	}

	balance, err := h.Service.Deposit(principal, amount)
	if err != nil {
		h.writeEngineError(c, err, "deposit")
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": strconv.FormatUint(balance, 10)})
}

func (h *Handler) GetBalance(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": strconv.FormatUint(h.Service.Balance(principal), 10)})
}

type feeRateRequest struct {
	RateBps uint64 `json:"rate_bps"`
}

func (h *Handler) SetFeeRate(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}

	var req feeRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	if err := h.Service.SetFeeRate(principal, req.RateBps); err != nil {
		h.writeEngineError(c, err, "set fee rate")
		return
	}
	c.JSON(http.StatusOK, gin.H{"fee_rate_bps": req.RateBps})
}

type withdrawRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) WithdrawRevenue(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
		return
	}

	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid amount")
		return
	}

	withdrawn, err := h.Service.WithdrawRevenue(principal, amount)
	if err != nil {
		h.writeEngineError(c, err, "withdraw revenue")
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn": strconv.FormatUint(withdrawn, 10)})
}

func (h *Handler) writeEngineError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "not found")
	case errors.Is(err, engine.ErrNotAuthorized):
		writeError(c, http.StatusForbidden, "FORBIDDEN", "not authorized")
	case errors.Is(err, engine.ErrInvalidState):
		writeError(c, http.StatusConflict, "INVALID_STATE", "order not in executable state")
	case errors.Is(err, engine.ErrDuplicateOrder):
		writeError(c, http.StatusConflict, "DUPLICATE_ORDER", "order already exists")
	case errors.Is(err, engine.ErrExpired):
		writeError(c, http.StatusBadRequest, "ORDER_EXPIRED", "order expired")
	case errors.Is(err, engine.ErrInsufficientFunds):
		writeError(c, http.StatusBadRequest, "INSUFFICIENT_FUNDS", "insufficient funds")
	case errors.Is(err, engine.ErrInvalidPrice),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidRate),
		errors.Is(err, engine.ErrConditionsTooLong):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		h.Logger.Error(op+" failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

// parseAmount accepts a decimal string in smallest units: a non-negative
// integer that fits uint64.
func parseAmount(value string) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("amount is required")
	}
	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, err
	}
	if dec.IsNegative() {
		return 0, errors.New("amount must be non-negative")
	}
	if !dec.Equal(dec.Truncate(0)) {
		return 0, errors.New("amount must be an integer in smallest units")
	}
	amount, err := strconv.ParseUint(dec.String(), 10, 64)
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func orderToResponse(order engine.Order) orderResponse {
	return orderResponse{
		OrderID:       order.ID.String(),
		Initiator:     order.Initiator.String(),
		AssetID:       order.Asset.String(),
		Price:         strconv.FormatUint(order.Price, 10),
		Kind:          order.Kind.String(),
		Status:        order.Status.String(),
		CreatedHeight: order.CreatedHeight,
		ExpiryHeight:  order.ExpiryHeight,
		Conditions:    order.Conditions,
	}
}

func tradeToResponse(trade engine.Trade) tradeResponse {
	return tradeResponse{
		TradeID:          trade.ID.String(),
		OrderID:          trade.OrderID.String(),
		Buyer:            trade.Buyer.String(),
		Seller:           trade.Seller.String(),
		AssetID:          trade.Asset.String(),
		Price:            strconv.FormatUint(trade.Price, 10),
		Fee:              strconv.FormatUint(trade.Fee, 10),
		Height:           trade.Height,
		SettlementStatus: trade.SettlementStatus.String(),
	}
}

func valuationToResponse(valuation engine.AssetValuation) valuationResponse {
	history := make([]string, 0, len(valuation.PriceHistory))
	for _, price := range valuation.PriceHistory {
		history = append(history, strconv.FormatUint(price, 10))
	}
	return valuationResponse{
		AssetID:         valuation.Asset.String(),
		LastTradePrice:  strconv.FormatUint(valuation.LastTradePrice, 10),
		MarketValuation: strconv.FormatUint(valuation.MarketValuation, 10),
		Height:          valuation.Height,
		PriceHistory:    history,
	}
}

func orderRecordToItem(order storage.OrderRecord) gin.H {
	return gin.H{
		"order_id":       order.ID,
		"initiator":      order.Initiator.String(),
		"asset_id":       order.AssetID,
		"price":          order.Price.String(),
		"kind":           order.Kind,
		"status":         order.Status,
		"created_height": order.CreatedHeight,
		"expiry_height":  order.ExpiryHeight,
		"created_at":     order.CreatedAt.UTC(),
	}
}

func tradeRecordToItem(trade storage.TradeRecord) gin.H {
	return gin.H{
		"trade_id":          trade.ID,
		"order_id":          trade.OrderID,
		"buyer":             trade.Buyer.String(),
		"seller":            trade.Seller.String(),
		"asset_id":          trade.AssetID,
		"price":             trade.Price.String(),
		"fee":               trade.Fee.String(),
		"height":            trade.Height,
		"settlement_status": trade.SettlementStatus,
		"settled_at":        trade.SettledAt.UTC(),
	}
}

func principalFromContext(c *gin.Context) (uuid.UUID, bool) {
	val, ok := c.Get(auth.ContextPrincipalKey)
	if !ok {
		return uuid.Nil, false
	}
	principal, ok := val.(uuid.UUID)
	if !ok || principal == uuid.Nil {
		return uuid.Nil, false
	}
	return principal, true
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get("X-Request-ID"); ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}
