package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/campusrewards/ledger-service/internal/app"
	"github.com/campusrewards/ledger-service/internal/domain"
)

type errorMapping struct {
	kind   error
	status int
}

// Checked in order; the first matching kind wins.
var errorStatuses = []errorMapping{
	{domain.ErrValidation, http.StatusBadRequest},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrInsufficientFunds, http.StatusPaymentRequired},
	{domain.ErrUnverifiedAccount, http.StatusForbidden},
	{domain.ErrPermission, http.StatusForbidden},
	{domain.ErrPromotionNotActive, http.StatusUnprocessableEntity},
	{domain.ErrMinimumSpendingNotMet, http.StatusUnprocessableEntity},
	{domain.ErrNotAGuest, http.StatusUnprocessableEntity},
	{domain.ErrPromotionAlreadyUsed, http.StatusConflict},
	{domain.ErrBudgetExceeded, http.StatusConflict},
	{domain.ErrAlreadyProcessed, http.StatusConflict},
	{domain.ErrWrongType, http.StatusConflict},
	{domain.ErrRateLimited, http.StatusTooManyRequests},
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	for _, m := range errorStatuses {
		if errors.Is(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with its mapped status. Unmapped errors are logged
// and replaced by a generic message.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, operation string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("ledger operation failed", "operation", operation, "error", err)
		writeError(w, status, "Internal server error")
		return
	}

	var limited *app.RateLimitError
	if errors.As(err, &limited) {
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
	}
	logger.Info("ledger operation rejected", "operation", operation, "status", status, "error", err)
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
