package handlers

import (
	"net/http"

	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/services"
	"github.com/xmtp/allow-list-management/v1/utils"
)

// SessionHandler opens and closes consent sessions
type SessionHandler struct {
	consentService *services.ConsentService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(consentService *services.ConsentService) *SessionHandler {
	return &SessionHandler{consentService: consentService}
}

// CreateSession handles POST /api/v1/sessions
// Connects a messaging client for the authenticated wallet.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireWallet(w, r); !ok {
		return
	}

	sess, err := h.consentService.Connect(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, sess.ToResponse())
}

// DeleteSession handles DELETE /api/v1/sessions/{sessionId}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireWallet(w, r)
	if !ok {
		return
	}

	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "sessionId is required")
		return
	}

	sess, err := h.consentService.Session(sessionID, owner)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.consentService.Disconnect(sess.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
