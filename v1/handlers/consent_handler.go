package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/xmtp/allow-list-management/v1/consentlist"
	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/services"
	"github.com/xmtp/allow-list-management/v1/session"
	"github.com/xmtp/allow-list-management/v1/utils"
)

// ConsentHandler serves the consent list of an open session
type ConsentHandler struct {
	consentService *services.ConsentService
}

// NewConsentHandler creates a new consent handler
func NewConsentHandler(consentService *services.ConsentService) *ConsentHandler {
	return &ConsentHandler{consentService: consentService}
}

// session resolves {sessionId} for the authenticated wallet, writing the error response on failure
func (h *ConsentHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	owner, ok := requireWallet(w, r)
	if !ok {
		return nil, false
	}

	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "sessionId is required")
		return nil, false
	}

	sess, err := h.consentService.Session(sessionID, owner)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	return sess, true
}

// ListConsents handles GET /api/v1/sessions/{sessionId}/consents?enrich=true
func (h *ConsentHandler) ListConsents(w http.ResponseWriter, r *http.Request) {
	enrich := false
	if raw := r.URL.Query().Get("enrich"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "enrich must be a boolean")
			return
		}
		enrich = parsed
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	list, err := h.consentService.ListConsents(r.Context(), sess, enrich)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, list)
}

// ExportConsents handles GET /api/v1/sessions/{sessionId}/consents/export
func (h *ConsentHandler) ExportConsents(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	body, err := h.consentService.ExportCSV(r.Context(), sess)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	utils.RespondWithAttachment(w, consentlist.ExportContentType, consentlist.ExportFileName, body)
}

// UpdateConsent handles PUT /api/v1/sessions/{sessionId}/consents/{address}
// Body: { "action": "allow" | "deny", "confirmed": true }
func (h *ConsentHandler) UpdateConsent(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if address == "" {
		utils.RespondWithError(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "address is required")
		return
	}

	var req models.PermissionActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid request body")
		return
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	resp, err := h.consentService.Apply(r.Context(), sess, address, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, resp)
}

// RecordPeer handles POST /api/v1/sessions/{sessionId}/peers
// Body: { "address": "0x..." }
func (h *ConsentHandler) RecordPeer(w http.ResponseWriter, r *http.Request) {
	var req models.RecordPeerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid request body")
		return
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	view, err := h.consentService.RecordPeer(r.Context(), sess, req.Address)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, view)
}

// ReconcileConsents handles POST /api/v1/consents/reconcile?format=csv
// Body: { "records": [ {address, permission} | {value, permissionType} | {address, state} ] }
func (h *ConsentHandler) ReconcileConsents(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireWallet(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "csv" {
		utils.RespondWithError(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "format must be json or csv")
		return
	}

	var req models.ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, models.ErrInvalidPermission) {
			writeServiceError(w, r, fmt.Errorf("%w: %w", models.ErrMalformedConsentRecord, err))
			return
		}
		utils.RespondWithError(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid request body")
		return
	}

	records, err := h.consentService.ReconcileExternal(req.Records)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if format == "csv" {
		body, err := consentlist.ExportCSV(records)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		utils.RespondWithAttachment(w, consentlist.ExportContentType, consentlist.ExportFileName, body)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, services.NewConsentListResponse(owner, records, nil))
}
