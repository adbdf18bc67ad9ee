package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/campusrewards/ledger-service/internal/app"
	"github.com/go-chi/chi/v5"
)

const maxRequestBodyBytes = 1 << 20

// LedgerHandlers holds the dependencies for the ledger HTTP handlers.
type LedgerHandlers struct {
	service *app.Service
	logger  *slog.Logger
}

// NewLedgerHandlers creates a new LedgerHandlers.
func NewLedgerHandlers(service *app.Service, logger *slog.Logger) *LedgerHandlers {
	return &LedgerHandlers{service: service, logger: logger}
}

// decodeJSON decodes the request body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// int64Param parses a positive integer URL parameter, writing a 400 on failure.
func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	value, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || value <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return value, true
}

// queryInt reads a non-negative integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

// CreatePurchaseHandler records a purchase on behalf of a member.
func (h *LedgerHandlers) CreatePurchaseHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipal(r.Context())

	var req app.PurchaseInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CreatedBy = principal.AccountID
	req.CreatorSuspicious = principal.Suspicious

	result, err := h.service.CreatePurchase(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "create_purchase", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// CreateAdjustmentHandler records a correction against an earlier transaction.
func (h *LedgerHandlers) CreateAdjustmentHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipal(r.Context())

	var req app.AdjustmentInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CreatedBy = principal.AccountID

	result, err := h.service.CreateAdjustment(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "create_adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// RequestRedemptionHandler lets the caller redeem their own points.
func (h *LedgerHandlers) RequestRedemptionHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipal(r.Context())

	var req app.RedemptionInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.AccountID = principal.AccountID

	result, err := h.service.RequestRedemption(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "request_redemption", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type processRedemptionRequest struct {
	Processed bool `json:"processed"`
}

// ProcessRedemptionHandler marks a pending redemption as fulfilled by the caller.
func (h *LedgerHandlers) ProcessRedemptionHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipal(r.Context())

	transactionID, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	var req processRedemptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Processed {
		writeError(w, http.StatusBadRequest, "processed must be true")
		return
	}

	result, err := h.service.ProcessRedemption(r.Context(), app.ProcessRedemptionInput{
		TransactionID:  transactionID,
		ProcessorID:    principal.AccountID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeServiceError(w, h.logger, "process_redemption", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TransferHandler moves points from the caller to another member.
func (h *LedgerHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipal(r.Context())

	var req app.TransferInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SenderID = principal.AccountID

	result, err := h.service.Transfer(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// AwardEventPointsHandler awards event points to one guest or all of them.
func (h *LedgerHandlers) AwardEventPointsHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipal(r.Context())

	eventID, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	var req app.EventAwardInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.EventID = eventID
	req.CreatedBy = principal.AccountID

	awards, err := h.service.AwardEventPoints(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "award_event_points", err)
		return
	}
	writeJSON(w, http.StatusCreated, awards)
}

type setSuspiciousRequest struct {
	Suspicious *bool `json:"suspicious"`
}

// SetSuspiciousHandler freezes or restores a transaction.
func (h *LedgerHandlers) SetSuspiciousHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	var req setSuspiciousRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Suspicious == nil {
		writeError(w, http.StatusBadRequest, "suspicious is required")
		return
	}

	result, err := h.service.SetSuspicious(r.Context(), transactionID, *req.Suspicious)
	if err != nil {
		writeServiceError(w, h.logger, "set_suspicious", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTransactionHandler returns a single transaction.
func (h *LedgerHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	result, err := h.service.GetTransaction(r.Context(), transactionID)
	if err != nil {
		writeServiceError(w, h.logger, "get_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetBalanceHandler returns an account's points.
func (h *LedgerHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if !canReadAccount(w, r, accountID) {
		return
	}
	points, err := h.service.Balance(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account_id": accountID, "points": points})
}

// ListAccountTransactionsHandler returns an account's history, newest first.
func (h *LedgerHandlers) ListAccountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if !canReadAccount(w, r, accountID) {
		return
	}
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	transactions, err := h.service.ListAccountTransactions(r.Context(), accountID, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, "list_account_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

// GetEventHandler returns an event's budget and guests.
func (h *LedgerHandlers) GetEventHandler(w http.ResponseWriter, r *http.Request) {
	eventID, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	event, err := h.service.GetEvent(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, h.logger, "get_event", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event":         event,
		"points_remain": event.PointsRemain(),
	})
}

// canReadAccount allows the account owner and managers.
func canReadAccount(w http.ResponseWriter, r *http.Request, accountID string) bool {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return false
	}
	if principal.AccountID != accountID && !principal.Role.AtLeast(RoleManager) {
		writeError(w, http.StatusForbidden, "Insufficient role")
		return false
	}
	return true
}
