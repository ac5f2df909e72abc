package models

import "time"

// ConsentView is one reconciled entry as returned to the UI
type ConsentView struct {
	Address     string     `json:"address"`
	Permission  Permission `json:"permission"`
	SocialNames []string   `json:"social_names,omitempty"`
	DomainNames []string   `json:"domain_names,omitempty"`
}

// ConsentListResponse is the reconciled consent list of one wallet
type ConsentListResponse struct {
	Owner    string        `json:"owner"`
	Consents []ConsentView `json:"consents"`
	Count    int           `json:"count"`
	Allowed  int           `json:"allowed"`
	Denied   int           `json:"denied"`
	Unknown  int           `json:"unknown"`
	// Addresses per permission, in list order
	AllowedAddresses []string `json:"allowed_addresses"`
	UnknownAddresses []string `json:"unknown_addresses"`
	DeniedAddresses  []string `json:"denied_addresses"`
}

// PermissionActionRequest is the body of PUT .../consents/{address}
type PermissionActionRequest struct {
	Action    PermissionAction `json:"action"`
	Confirmed bool             `json:"confirmed"`
}

// RecordPeerRequest is the body of POST .../peers
type RecordPeerRequest struct {
	Address string `json:"address"`
}

// ReconcileRequest is the body of POST /api/v1/consents/reconcile
type ReconcileRequest struct {
	Records []ExternalConsentRecord `json:"records"`
}

// PermissionActionResponse reports the state after a permission change
type PermissionActionResponse struct {
	Address    string           `json:"address"`
	Permission Permission       `json:"permission"`
	Event      ConsentEventType `json:"event"`
}

// SessionResponse describes an open consent session
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	Address   string    `json:"address"`
	Env       string    `json:"env"`
	CreatedAt time.Time `json:"created_at"`
}

// NewConsentListResponse builds the API view of a reconciled list, attaching
// any profiles found for its addresses.
func NewConsentListResponse(owner string, records []ConsentRecord, profiles map[string]Profile) *ConsentListResponse {
	resp := &ConsentListResponse{
		Owner:    owner,
		Consents: make([]ConsentView, 0, len(records)),
		Count:    len(records),
	}
	for _, r := range records {
		view := ConsentView{Address: r.Address, Permission: r.Permission}
		if profile, ok := profiles[r.Address]; ok {
			view.SocialNames = profile.SocialNames
			view.DomainNames = profile.DomainNames
		}
		resp.Consents = append(resp.Consents, view)

		switch r.Permission {
		case PermissionAllowed:
			resp.Allowed++
		case PermissionDenied:
			resp.Denied++
		default:
			resp.Unknown++
		}
	}
	return resp
}
