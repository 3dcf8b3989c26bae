package httpserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/mselser95/gridbot/internal/circuitbreaker"
	"github.com/mselser95/gridbot/internal/grid"
	"github.com/mselser95/gridbot/internal/pending"
	"github.com/mselser95/gridbot/internal/reconcile"
	"github.com/mselser95/gridbot/pkg/profit"
	"github.com/mselser95/gridbot/pkg/types"
	"go.uber.org/zap"
)

// GridService is the command and query surface served over HTTP.
// *grid.Service implements it.
type GridService interface {
	CreatePair(ctx context.Context, buyPrice, sellPrice, amountQuote float64) (*pending.Pair, error)
	ModifyBuyPrice(ctx context.Context, pairID string, newPrice float64) (*pending.Pair, error)
	ModifyPairSellPrice(ctx context.Context, pairID string, newPrice float64) error
	ModifyPositionSellPrice(ctx context.Context, sellOrderID int64, newPrice float64) (*types.Order, error)
	CancelPair(ctx context.Context, pairID string) error
	ClosePosition(ctx context.Context, sellOrderID int64) (*types.Order, error)
	GetOpenPositions(ctx context.Context) ([]reconcile.OpenPosition, error)
	GetCompletedPairs(ctx context.Context, limit int) ([]reconcile.CompletedPair, error)
	GetPendingPairs() []reconcile.PairStatus
	GetAccountBalance(ctx context.Context) (*types.AccountBalance, error)
	GetProfitSummary(ctx context.Context) (profit.Summary, error)
	GetPrice(ctx context.Context) (float64, error)
	GetKlines(ctx context.Context, interval string, limit int) ([]types.Kline, error)
	GetOpenOrders(ctx context.Context) (*grid.OpenOrders, error)
	CancelOrder(ctx context.Context, orderID int64) (*types.Order, error)
}

// Reconciler runs an on-demand reconciliation pass.
type Reconciler interface {
	RunOnce(ctx context.Context) error
	LastPass() time.Time
}

// GuardStatus reports the balance guard state.
type GuardStatus interface {
	GetStatus() circuitbreaker.Status
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreatePairRequest is the body of POST /api/pairs.
type CreatePairRequest struct {
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`
	Amount    float64 `json:"amount"`
}

// PriceRequest is the body of the price modification endpoints.
type PriceRequest struct {
	Price float64 `json:"price"`
}

// GridHandler serves the operator API.
type GridHandler struct {
	svc        GridService
	reconciler Reconciler
	guard      GuardStatus
	logger     *zap.Logger
}

// NewGridHandler creates a new grid handler. reconciler and guard may be nil.
func NewGridHandler(svc GridService, reconciler Reconciler, guard GuardStatus, logger *zap.Logger) *GridHandler {
	return &GridHandler{
		svc:        svc,
		reconciler: reconciler,
		guard:      guard,
		logger:     logger,
	}
}

// Routes registers the API routes on r.
func (h *GridHandler) Routes(r chi.Router) {
	r.Get("/pairs", h.HandleListPairs)
	r.Post("/pairs", h.HandleCreatePair)
	r.Patch("/pairs/{id}/buy-price", h.HandleModifyBuyPrice)
	r.Patch("/pairs/{id}/sell-price", h.HandleModifyPairSellPrice)
	r.Delete("/pairs/{id}", h.HandleCancelPair)

	r.Get("/positions", h.HandleListPositions)
	r.Patch("/positions/{sellOrderID}/sell-price", h.HandleModifyPositionSellPrice)
	r.Post("/positions/{sellOrderID}/close", h.HandleClosePosition)

	r.Get("/orders", h.HandleListOrders)
	r.Delete("/orders/{orderID}", h.HandleCancelOrder)

	r.Get("/history", h.HandleHistory)
	r.Get("/profit", h.HandleProfit)
	r.Get("/balance", h.HandleBalance)
	r.Get("/price", h.HandlePrice)
	r.Get("/klines", h.HandleKlines)

	if h.reconciler != nil {
		r.Post("/reconcile", h.HandleReconcile)
	}
	if h.guard != nil {
		r.Get("/guard", h.HandleGuard)
	}
}

func (h *GridHandler) HandleListPairs(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.GetPendingPairs())
}

func (h *GridHandler) HandleCreatePair(w http.ResponseWriter, r *http.Request) {
	var req CreatePairRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.svc.CreatePair(r.Context(), req.BuyPrice, req.SellPrice, req.Amount)
	if err != nil {
		h.writeFailure(w, "create-pair", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, pair)
}

func (h *GridHandler) HandleModifyBuyPrice(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.svc.ModifyBuyPrice(r.Context(), chi.URLParam(r, "id"), req.Price)
	if err != nil {
		h.writeFailure(w, "modify-buy-price", err)
		return
	}
	h.writeJSON(w, http.StatusOK, pair)
}

func (h *GridHandler) HandleModifyPairSellPrice(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.svc.ModifyPairSellPrice(r.Context(), chi.URLParam(r, "id"), req.Price)
	if err != nil {
		h.writeFailure(w, "modify-pair-sell-price", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GridHandler) HandleCancelPair(w http.ResponseWriter, r *http.Request) {
	err := h.svc.CancelPair(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeFailure(w, "cancel-pair", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GridHandler) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.svc.GetOpenPositions(r.Context())
	if err != nil {
		h.writeFailure(w, "list-positions", err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(positions))
}

func (h *GridHandler) HandleModifyPositionSellPrice(w http.ResponseWriter, r *http.Request) {
	sellOrderID, ok := h.orderID(w, r, "sellOrderID")
	if !ok {
		return
	}
	var req PriceRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.svc.ModifyPositionSellPrice(r.Context(), sellOrderID, req.Price)
	if err != nil {
		h.writeFailure(w, "modify-position-sell-price", err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

func (h *GridHandler) HandleClosePosition(w http.ResponseWriter, r *http.Request) {
	sellOrderID, ok := h.orderID(w, r, "sellOrderID")
	if !ok {
		return
	}

	order, err := h.svc.ClosePosition(r.Context(), sellOrderID)
	if err != nil {
		h.writeFailure(w, "close-position", err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// HandleListOrders handles GET /api/orders.
func (h *GridHandler) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.GetOpenOrders(r.Context())
	if err != nil {
		h.writeFailure(w, "list-orders", err)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *GridHandler) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.svc.CancelOrder(r.Context(), orderID)
	if err != nil {
		h.writeFailure(w, "cancel-order", err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// HandleHistory handles GET /api/history?limit=<n>.
func (h *GridHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intQuery(w, r, "limit", 50)
	if !ok {
		return
	}

	completed, err := h.svc.GetCompletedPairs(r.Context(), limit)
	if err != nil {
		h.writeFailure(w, "history", err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(completed))
}

func (h *GridHandler) HandleProfit(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.GetProfitSummary(r.Context())
	if err != nil {
		h.writeFailure(w, "profit", err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *GridHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.svc.GetAccountBalance(r.Context())
	if err != nil {
		h.writeFailure(w, "balance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

func (h *GridHandler) HandlePrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.svc.GetPrice(r.Context())
	if err != nil {
		h.writeFailure(w, "price", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]float64{"price": price})
}

// HandleKlines handles GET /api/klines?interval=<1h>&limit=<n>.
func (h *GridHandler) HandleKlines(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intQuery(w, r, "limit", 100)
	if !ok {
		return
	}

	klines, err := h.svc.GetKlines(r.Context(), r.URL.Query().Get("interval"), limit)
	if err != nil {
		h.writeFailure(w, "klines", err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(klines))
}

func (h *GridHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	err := h.reconciler.RunOnce(r.Context())
	if errors.Is(err, reconcile.ErrPassInFlight) {
		h.writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.writeFailure(w, "reconcile", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]time.Time{"last_pass": h.reconciler.LastPass()})
}

func (h *GridHandler) HandleGuard(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.guard.GetStatus())
}

func (h *GridHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err != nil {
		h.writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *GridHandler) orderID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, "order id must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *GridHandler) intQuery(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		h.writeError(w, fmt.Sprintf("%s must be a non-negative integer", key), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

// writeFailure maps a command or query error to an HTTP status.
func (h *GridHandler) writeFailure(w http.ResponseWriter, op string, err error) {
	status := StatusFor(err)

	var rateLimit *types.RateLimitError
	if errors.As(err, &rateLimit) {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rateLimit.RetryAfter.Seconds()))))
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("api-request-failed", zap.String("op", op), zap.Int("status", status), zap.Error(err))
	} else {
		h.logger.Info("api-request-rejected", zap.String("op", op), zap.Int("status", status), zap.Error(err))
	}

	message := err.Error()
	var rejection *types.RejectionError
	if errors.As(err, &rejection) {
		message = rejection.Message
	}
	h.writeError(w, message, status)
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	var (
		rejection *types.RejectionError
		rateLimit *types.RateLimitError
		transient *types.TransientError
		auth      *types.AuthenticationError
	)

	switch {
	case errors.Is(err, grid.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, grid.ErrPairNotFound), errors.Is(err, grid.ErrPositionNotFound),
		errors.Is(err, grid.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, grid.ErrBuyAlreadyFilled), errors.Is(err, grid.ErrPositionClosed),
		errors.Is(err, grid.ErrBalanceGuardOpen):
		return http.StatusConflict
	case errors.As(err, &rejection):
		return http.StatusUnprocessableEntity
	case errors.As(err, &rateLimit):
		return http.StatusTooManyRequests
	case errors.As(err, &transient):
		return http.StatusServiceUnavailable
	case errors.As(err, &auth):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *GridHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	err := writeJSON(w, status, v)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *GridHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// nonNil keeps empty lists encoded as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
