package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/xmtp/allow-list-management/internal/monitoring"
	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/utils"
	"github.com/xmtp/allow-list-management/v1/wallet"
)

// requireWallet returns the authenticated wallet address or writes a 401
func requireWallet(w http.ResponseWriter, r *http.Request) (string, bool) {
	address, ok := wallet.AddressFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Wallet address not found in token")
		return "", false
	}
	return address, true
}

// writeServiceError maps a consent service error onto an HTTP error response
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case r.Context().Err() != nil || models.ClassifyError(err) == models.ClassCancelled:
		slog.Warn("Request context cancelled during service call", "error", err)
		utils.RespondWithError(w, http.StatusRequestTimeout, models.ErrorCodeRequestTimeout, "Request timeout or cancelled")
	case errors.Is(err, models.ErrAuthorizationDeclined):
		utils.RespondWithError(w, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Wallet authorization declined")
	case errors.Is(err, models.ErrSessionForbidden):
		utils.RespondWithError(w, http.StatusForbidden, models.ErrorCodeForbidden, "Access denied: session belongs to a different wallet")
	case errors.Is(err, models.ErrSessionNotFound):
		utils.RespondWithError(w, http.StatusNotFound, models.ErrorCodeSessionNotFound, "Session not found or expired")
	case errors.Is(err, models.ErrConfirmationDeclined):
		utils.RespondWithError(w, http.StatusConflict, models.ErrorCodeConfirmationDeclined, "Permission change was not confirmed")
	case errors.Is(err, models.ErrMalformedConsentRecord):
		utils.RespondWithError(w, http.StatusBadRequest, models.ErrorCodeMalformedConsentRecord, err.Error())
	case errors.Is(err, models.ErrInvalidPermission), errors.Is(err, models.ErrInvalidAddress):
		utils.RespondWithError(w, http.StatusBadRequest, models.ErrorCodeBadRequest, err.Error())
	case errors.Is(err, models.ErrServiceUnavailable):
		utils.RespondWithError(w, http.StatusBadGateway, models.ErrorCodeServiceUnavailable, "Messaging service unavailable")
	default:
		slog.Error("Unexpected consent service error", "error", err, "trace_id", monitoring.GetTraceIDFromContext(r.Context()))
		utils.RespondWithError(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "An unexpected error occurred")
	}
}
