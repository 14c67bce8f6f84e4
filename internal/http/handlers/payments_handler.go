package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zoneadmin/internal/http/middleware"
	"zoneadmin/internal/service"
)

// PaymentsHandler exposes the payment orchestrator over HTTP.
type PaymentsHandler struct {
	service *service.PaymentService
	logger  *zap.Logger
}

// NewPaymentsHandler builds handler.
func NewPaymentsHandler(svc *service.PaymentService, logger *zap.Logger) *PaymentsHandler {
	return &PaymentsHandler{
		service: svc,
		logger:  logger,
	}
}

type createPaymentRequest struct {
	ClientID    int64           `json:"client_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PhoneNumber string          `json:"phone_number"`
	Purpose     string          `json:"purpose"`
	ExternalRef string          `json:"external_ref"`
	Metadata    json.RawMessage `json:"metadata"`
}

// Create handles POST /api/payments.
func (h *PaymentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	tx, err := h.service.Create(r.Context(), service.CreateInput{
		ClientID:    req.ClientID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		PhoneNumber: req.PhoneNumber,
		Purpose:     req.Purpose,
		ExternalRef: req.ExternalRef,
		Metadata:    req.Metadata,
		Principal:   principal,
	})
	if err != nil {
		h.logger.Error("failed to create payment", zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

type completePaymentRequest struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	ReferenceID   string `json:"reference_id"`
}

// Complete handles POST /api/payments/{id}/complete.
func (h *PaymentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.PrincipalFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	pendingID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || pendingID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid pending transaction id")
		return
	}

	var req completePaymentRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	completed, err := h.service.Complete(r.Context(), service.CompleteInput{
		PendingID:     pendingID,
		TransactionID: req.TransactionID,
		Status:        req.Status,
		ReferenceID:   req.ReferenceID,
	})
	if err != nil {
		h.logger.Error("failed to complete payment",
			zap.Int64("pending_id", pendingID),
			zap.Error(err),
		)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, completed)
}

// ListPending handles GET /api/payments/pending.
func (h *PaymentsHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	txs, err := h.service.ListPending(r.Context(), principal, queryFilter(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load pending transactions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
	})
}

// ListCompleted handles GET /api/payments/completed.
func (h *PaymentsHandler) ListCompleted(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	payments, err := h.service.ListCompleted(r.Context(), principal, queryFilter(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load completed payments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payments": payments,
	})
}

func queryFilter(r *http.Request) service.QueryFilter {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	return service.QueryFilter{
		ChiefScope: q.Get("scope") == "chief",
		Mine:       q.Get("mine") == "true",
		Today:      q.Get("filter") == "today",
		Limit:      limit,
	}
}
