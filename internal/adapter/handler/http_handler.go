package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/pkg/logger"
)

const healthTimeout = 2 * time.Second

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthChecks is healthy only when every member is.
type HealthChecks []HealthChecker

func (hc HealthChecks) Ping(ctx context.Context) error {
	for _, c := range hc {
		if err := c.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

type HTTPHandler struct {
	products *service.ProductService
	ledger   *service.LedgerService
	health   HealthChecker
}

type CreateProductRequest struct {
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	Description string `json:"description"`
	MinStock    int    `json:"minStock"`
	MaxStock    int    `json:"maxStock"`
}

type UpdateProductRequest struct {
	domain.ProductChanges
	SKU          *string `json:"sku,omitempty"`
	CurrentStock *int    `json:"currentStock,omitempty"`
}

type TransactionItemRequest struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type RecordTransactionRequest struct {
	Type      string                   `json:"type"`
	Reference string                   `json:"reference"`
	Notes     string                   `json:"notes"`
	Items     []TransactionItemRequest `json:"items"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	ProductID string `json:"productId,omitempty"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
}

type ReconciliationResponse struct {
	Consistent    bool                 `json:"consistent"`
	Discrepancies []domain.Discrepancy `json:"discrepancies"`
}

func NewHTTPHandler(products *service.ProductService, ledger *service.LedgerService, health HealthChecker) *HTTPHandler {
	return &HTTPHandler{products: products, ledger: ledger, health: health}
}

// RegisterRoutes registers the ledger API and health check
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products", h.CreateProduct).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.UpdateProduct).Methods(http.MethodPatch)
	api.HandleFunc("/products/{id}", h.RetireProduct).Methods(http.MethodDelete)
	api.HandleFunc("/transactions", h.ListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", h.RecordTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", h.GetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transaction-details", h.ListTransactionDetails).Methods(http.MethodGet)
	api.HandleFunc("/inventory", h.Inventory).Methods(http.MethodGet)
	api.HandleFunc("/inventory/reconciliation", h.Reconcile).Methods(http.MethodGet)

	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListProducts(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !decodeBody(w, r, &req) {
		return
	}

	product, err := h.products.CreateProduct(r.Context(), service.CreateProductInput{
		Name:        req.Name,
		SKU:         req.SKU,
		Description: req.Description,
		MinStock:    req.MinStock,
		MaxStock:    req.MaxStock,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SKU != nil {
		respondError(w, r, domain.NewValidationError("sku", "sku cannot be changed"))
		return
	}
	if req.CurrentStock != nil {
		respondError(w, r, domain.NewValidationError("currentStock", "stock changes only through transactions"))
		return
	}

	product, err := h.products.UpdateProduct(r.Context(), mux.Vars(r)["id"], req.ProductChanges)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) RetireProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.RetireProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := h.ledger.ListTransactions(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, txns)
}

// RecordTransaction handles POST /api/transactions. An Idempotency-Key header
// makes retries of the same request safe.
func (h *HTTPHandler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req RecordTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := service.RecordTransactionInput{
		Type:           req.Type,
		Reference:      req.Reference,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Items:          make([]service.TransactionItemInput, len(req.Items)),
	}
	for i, item := range req.Items {
		in.Items[i] = service.TransactionItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	txn, err := h.ledger.RecordTransaction(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, txn)
}

func (h *HTTPHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.ledger.GetTransaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

func (h *HTTPHandler) ListTransactionDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.ledger.ListTransactionDetails(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, details)
}

func (h *HTTPHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.products.Inventory(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	discrepancies, err := h.ledger.Reconcile(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ReconciliationResponse{
		Consistent:    len(discrepancies) == 0,
		Discrepancies: discrepancies,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		logger.Warn(ctx).Err(err).Msg("Health check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, r, domain.NewValidationError("body", "invalid request body: %v", err))
		return false
	}
	return true
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindInvalidBounds:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindDuplicateSKU, domain.KindInsufficientStock, domain.KindContention, domain.KindDuplicateRequest:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error(r.Context()).
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "InternalError",
			Message: "internal error",
		})
		return
	}

	resp := ErrorResponse{
		Error:     string(de.Kind),
		Message:   de.Message,
		Field:     de.Field,
		ProductID: de.ProductID,
	}
	if de.Kind == domain.KindInsufficientStock {
		resp.Available = &de.Available
		resp.Requested = &de.Requested
	}
	if de.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(w, statusFor(de.Kind), resp)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
