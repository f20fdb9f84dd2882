// internal/service/seckill/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"flashmall/internal/pkg/logger"
	"flashmall/internal/service/seckill/application"
	"flashmall/internal/service/seckill/domain"
	"flashmall/internal/service/seckill/domain/port"
	"flashmall/internal/service/seckill/infrastructure"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const serviceName = "seckill-service"

// SeckillHandler exposes the reservation pipeline over HTTP.
type SeckillHandler struct {
	orchestrator *application.SeckillOrchestrator
	ledger       port.InventoryLedger
	orders       domain.OrderStore
}

func NewSeckillHandler(orchestrator *application.SeckillOrchestrator, ledger port.InventoryLedger, orders domain.OrderStore) *SeckillHandler {
	return &SeckillHandler{orchestrator: orchestrator, ledger: ledger, orders: orders}
}

// RegisterRoutes mounts all routes on the ServeMux.
func (h *SeckillHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/seckill/reserve", h.reserveHandler)
	mux.HandleFunc("/seckill/prepare", h.prepareHandler)
	mux.HandleFunc("/seckill/order", h.orderHandler)
}

type reserveRequest struct {
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	IsVIP     bool   `json:"isVip"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Remaining *int64 `json:"remaining,omitempty"`
}

func (h *SeckillHandler) reserveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "api.SeckillReserve")
	defer span.End()

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive", nil)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	span.SetAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("product.id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
		attribute.Bool("user.is_vip", req.IsVIP),
	)

	ticket, err := h.orchestrator.Reserve(ctx, application.ReserveCommand{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		IsVIP:     req.IsVIP,
	})
	if err != nil {
		h.writeReserveError(w, err)
		return
	}

	infrastructure.ReservationOutcomes.WithLabelValues("granted").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(ticket)
}

// writeReserveError maps domain denials to client statuses; anything else is a
// retryable server fault.
func (h *SeckillHandler) writeReserveError(w http.ResponseWriter, err error) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		infrastructure.ReservationOutcomes.WithLabelValues("denied").Inc()
		writeError(w, http.StatusConflict, stockErr.Error(), &stockErr.Remaining)
	case errors.Is(err, domain.ErrDuplicateParticipation):
		infrastructure.ReservationOutcomes.WithLabelValues("duplicate").Inc()
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, domain.ErrNotEligible):
		infrastructure.ReservationOutcomes.WithLabelValues("denied").Inc()
		writeError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, domain.ErrProductNotFound):
		infrastructure.ReservationOutcomes.WithLabelValues("error").Inc()
		writeError(w, http.StatusNotFound, err.Error(), nil)
	default:
		infrastructure.ReservationOutcomes.WithLabelValues("error").Inc()
		writeError(w, http.StatusServiceUnavailable, "reservation temporarily unavailable", nil)
	}
}

type prepareRequest struct {
	ProductID string `json:"productId"`
	Stock     int64  `json:"stock"`
}

// prepareHandler opens a sale window: it loads the sellable counter into the
// ledger and clears stale participation markers. Ops-facing, not buyer-facing.
func (h *SeckillHandler) prepareHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" || req.Stock < 0 {
		writeError(w, http.StatusBadRequest, "invalid prepare request", nil)
		return
	}

	if err := h.ledger.Prepare(ctx, req.ProductID, req.Stock); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("product_id", req.ProductID).Msg("failed to prepare sale window")
		writeError(w, http.StatusServiceUnavailable, "failed to prepare sale window", nil)
		return
	}
	logger.Ctx(ctx).Info().
		Str("product_id", req.ProductID).
		Int64("stock", req.Stock).
		Msg("✅ Sale window prepared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *SeckillHandler) orderHandler(w http.ResponseWriter, r *http.Request) {
	orderNo := r.URL.Query().Get("orderNo")
	if orderNo == "" {
		writeError(w, http.StatusBadRequest, "missing orderNo", nil)
		return
	}

	order, err := h.orders.FindByOrderNo(r.Context(), orderNo)
	if errors.Is(err, domain.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "failed to load order", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}

func writeError(w http.ResponseWriter, status int, msg string, remaining *int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg, Remaining: remaining})
}
