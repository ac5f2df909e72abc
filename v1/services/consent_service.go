package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xmtp/allow-list-management/internal/monitoring"
	"github.com/xmtp/allow-list-management/v1/consentlist"
	"github.com/xmtp/allow-list-management/v1/events"
	"github.com/xmtp/allow-list-management/v1/messaging"
	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/session"
	"github.com/xmtp/allow-list-management/v1/social"
	"github.com/xmtp/allow-list-management/v1/wallet"
)

// ConsentService connects wallets and reads and changes their consent lists
type ConsentService struct {
	sessions  *session.Manager
	provider  wallet.Provider
	connector messaging.Connector
	resolver  social.Resolver
	notifier  events.Notifier
	onError   func(error)
	now       func() time.Time
}

// NewConsentService creates a new consent service. A nil resolver disables
// enrichment and a nil notifier only logs events.
func NewConsentService(
	sessions *session.Manager,
	provider wallet.Provider,
	connector messaging.Connector,
	resolver social.Resolver,
	notifier events.Notifier,
) (*ConsentService, error) {
	if sessions == nil || provider == nil || connector == nil {
		return nil, fmt.Errorf("consent service requires a session manager, wallet provider and messaging connector")
	}
	if resolver == nil {
		resolver = social.NoopResolver{}
	}
	if notifier == nil {
		notifier = events.LogNotifier{}
	}
	return &ConsentService{
		sessions:  sessions,
		provider:  provider,
		connector: connector,
		resolver:  resolver,
		notifier:  notifier,
		now:       time.Now,
	}, nil
}

// SetErrorCallback registers fn to receive every failed operation's error.
// Use models.ClassifyError to tell the failure classes apart.
func (s *ConsentService) SetErrorCallback(fn func(error)) {
	s.onError = fn
}

// Connect requests the wallet account, connects a messaging client and opens
// a session. The consent list is fetched once to prove the client works.
func (s *ConsentService) Connect(ctx context.Context) (*session.Session, error) {
	sess, err := s.sessions.Open(ctx, s.provider, s.connector)
	if err != nil {
		s.report(models.OpConnect, err)
		monitoring.RecordBusinessEvent("session_open", string(models.ClassifyError(err)))
		return nil, err
	}

	if _, err := s.RefreshConsentList(ctx, sess); err != nil {
		// RefreshConsentList already reported; make sure the half-open session goes away
		s.sessions.Close(sess.ID)
		monitoring.RecordBusinessEvent("session_open", string(models.ClassifyError(err)))
		return nil, err
	}

	monitoring.RecordBusinessEvent("session_open", "success")
	return sess, nil
}

// Session returns an open session owned by owner
func (s *ConsentService) Session(id, owner string) (*session.Session, error) {
	return s.sessions.Get(id, owner)
}

// Disconnect closes the session
func (s *ConsentService) Disconnect(id uuid.UUID) error {
	if err := s.sessions.Close(id); err != nil {
		s.report(models.OpCloseSession, err)
		return err
	}
	monitoring.RecordBusinessEvent("session_close", "success")
	return nil
}

// RefreshConsentList fetches the raw consent history and reconciles it:
// one entry per address, allowed first and denied last.
func (s *ConsentService) RefreshConsentList(ctx context.Context, sess *session.Session) ([]models.ConsentRecord, error) {
	raw, err := sess.Client.FetchConsentRecords(ctx)
	if err != nil {
		return nil, s.fail(sess, models.OpRefreshConsentList, err)
	}

	records, err := consentlist.Reconcile(raw)
	if err != nil {
		return nil, s.fail(sess, models.OpRefreshConsentList, err)
	}

	slog.Debug("Refreshed consent list", "session_id", sess.ID, "raw", len(raw), "entries", len(records))
	return records, nil
}

// ListConsents returns the reconciled list, with social profiles when enrich
// is set. A resolution failure is reported and the list returned without profiles.
func (s *ConsentService) ListConsents(ctx context.Context, sess *session.Session, enrich bool) (*models.ConsentListResponse, error) {
	records, err := s.RefreshConsentList(ctx, sess)
	if err != nil {
		return nil, err
	}

	var profiles map[string]models.Profile
	if enrich && len(records) > 0 {
		profiles, err = s.resolver.Resolve(ctx, consentlist.Addresses(records))
		if err != nil {
			s.report(models.OpResolveProfiles, err)
			profiles = nil
		}
	}

	return NewConsentListResponse(sess.Owner(), records, profiles), nil
}

// NewConsentListResponse builds the list response and fills in the address
// groups per permission.
func NewConsentListResponse(owner string, records []models.ConsentRecord, profiles map[string]models.Profile) *models.ConsentListResponse {
	resp := models.NewConsentListResponse(owner, records, profiles)
	groups := consentlist.GroupByPermission(records)
	resp.AllowedAddresses = consentlist.Addresses(groups[models.PermissionAllowed])
	resp.UnknownAddresses = consentlist.Addresses(groups[models.PermissionUnknown])
	resp.DeniedAddresses = consentlist.Addresses(groups[models.PermissionDenied])
	return resp
}

// Allow marks peer as allowed once the user confirmed the change
func (s *ConsentService) Allow(ctx context.Context, sess *session.Session, peer string, confirmed bool) (*models.PermissionActionResponse, error) {
	return s.setPermission(ctx, sess, models.OpAllow, peer, models.PermissionAllowed, confirmed)
}

// Deny marks peer as denied once the user confirmed the change
func (s *ConsentService) Deny(ctx context.Context, sess *session.Session, peer string, confirmed bool) (*models.PermissionActionResponse, error) {
	return s.setPermission(ctx, sess, models.OpDeny, peer, models.PermissionDenied, confirmed)
}

// Apply performs the allow or deny named by action
func (s *ConsentService) Apply(ctx context.Context, sess *session.Session, peer string, req models.PermissionActionRequest) (*models.PermissionActionResponse, error) {
	permission := req.Action.Permission()
	switch permission {
	case models.PermissionAllowed:
		return s.setPermission(ctx, sess, models.OpAllow, peer, permission, req.Confirmed)
	case models.PermissionDenied:
		return s.setPermission(ctx, sess, models.OpDeny, peer, permission, req.Confirmed)
	default:
		err := fmt.Errorf("%w: action must be allow or deny, got %q", models.ErrInvalidPermission, req.Action)
		s.report(models.OpApplyAction, err)
		return nil, err
	}
}

// RecordPeer notes a peer the wallet has just met. A peer without history
// gets an unknown entry; a peer with a decision keeps it.
func (s *ConsentService) RecordPeer(ctx context.Context, sess *session.Session, peer string) (*models.ConsentView, error) {
	if err := models.CheckAddress(peer); err != nil {
		s.report(models.OpRecordPeer, err)
		return nil, err
	}
	recorder, ok := sess.Client.(messaging.PeerRecorder)
	if !ok {
		err := fmt.Errorf("%w: messaging client cannot record peers: %w", models.ErrServiceUnavailable, errors.ErrUnsupported)
		s.report(models.OpRecordPeer, err)
		return nil, err
	}

	current, err := recorder.RecordPeer(ctx, peer)
	if err != nil {
		monitoring.RecordBusinessEvent("peer_recorded", "failure")
		return nil, s.fail(sess, models.OpRecordPeer, err)
	}

	slog.Info("Recorded peer", "session_id", sess.ID, "owner", sess.Owner(), "peer", peer, "permission", current)
	monitoring.RecordBusinessEvent("peer_recorded", "success")
	return &models.ConsentView{Address: peer, Permission: current}, nil
}

// ReconcileExternal reconciles records exported by another client, in any of
// the accepted record shapes.
func (s *ConsentService) ReconcileExternal(records []models.ExternalConsentRecord) ([]models.ConsentRecord, error) {
	raw := make([]models.ConsentRecord, len(records))
	for i, r := range records {
		raw[i] = r.ConsentRecord()
	}

	out, err := consentlist.Reconcile(raw)
	if err != nil {
		s.report(models.OpReconcileExternal, err)
		monitoring.RecordBusinessEvent("consent_reconcile", "failure")
		return nil, err
	}
	monitoring.RecordBusinessEvent("consent_reconcile", "success")
	return out, nil
}

func (s *ConsentService) setPermission(ctx context.Context, sess *session.Session, op, peer string, permission models.Permission, confirmed bool) (*models.PermissionActionResponse, error) {
	action := "consent_" + string(permission)

	if err := models.CheckAddress(peer); err != nil {
		s.report(op, err)
		return nil, err
	}
	if !confirmed {
		err := fmt.Errorf("%w: %s %s", models.ErrConfirmationDeclined, op, peer)
		s.report(op, err)
		monitoring.RecordBusinessEvent(action, "declined")
		return nil, err
	}

	if err := sess.Client.SetPermission(ctx, peer, permission); err != nil {
		monitoring.RecordBusinessEvent(action, "failure")
		return nil, s.fail(sess, op, err)
	}

	current, err := sess.Client.CurrentPermission(ctx, peer)
	if err != nil {
		monitoring.RecordBusinessEvent(action, "failure")
		return nil, s.fail(sess, op, err)
	}
	if _, err := s.RefreshConsentList(ctx, sess); err != nil {
		monitoring.RecordBusinessEvent(action, "failure")
		return nil, err
	}

	event := models.NewConsentEvent(sess.Owner(), peer, permission, s.now())
	if err := s.notifier.Notify(ctx, event); err != nil {
		slog.Warn("Failed to deliver consent event", "event_id", event.EventID, "type", event.Type, "error", err)
	}

	slog.Info("Changed consent permission",
		"session_id", sess.ID,
		"owner", sess.Owner(),
		"peer", peer,
		"permission", current)
	monitoring.RecordBusinessEvent(action, "success")

	return &models.PermissionActionResponse{
		Address:    peer,
		Permission: current,
		Event:      event.Type,
	}, nil
}

// ExportCSV refreshes the list and renders it as CSV
func (s *ConsentService) ExportCSV(ctx context.Context, sess *session.Session) ([]byte, error) {
	records, err := s.RefreshConsentList(ctx, sess)
	if err != nil {
		return nil, err
	}
	out, err := consentlist.ExportCSV(records)
	if err != nil {
		return nil, s.fail(sess, models.OpExportCSV, err)
	}
	monitoring.RecordBusinessEvent("consent_export", "success")
	return out, nil
}

// fail reports err and closes the session when its client is no longer usable
func (s *ConsentService) fail(sess *session.Session, op string, err error) error {
	s.report(op, err)
	s.sessions.CloseOnError(sess.ID, err)
	return err
}

func (s *ConsentService) report(op string, err error) {
	slog.Error("Consent operation failed", "operation", op, "class", models.ClassifyError(err), "error", err)
	if s.onError != nil {
		s.onError(err)
	}
}
