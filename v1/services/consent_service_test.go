package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmtp/allow-list-management/v1/events"
	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/session"
	"github.com/xmtp/allow-list-management/v1/social"
	"github.com/xmtp/allow-list-management/v1/wallet"
)

func TestNewConsentService(t *testing.T) {
	sessions := session.NewManager(models.EnvLocal, 0)

	_, err := NewConsentService(nil, wallet.NewContextProvider(), scriptedConnector{}, nil, nil)
	assert.Error(t, err)

	_, err = NewConsentService(sessions, nil, scriptedConnector{}, nil, nil)
	assert.Error(t, err)

	s, err := NewConsentService(sessions, wallet.NewContextProvider(), scriptedConnector{}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, social.NoopResolver{}, s.resolver)
	assert.IsType(t, events.LogNotifier{}, s.notifier)
}

func TestConsentService_Connect(t *testing.T) {
	t.Run("opens a session for the authenticated wallet", func(t *testing.T) {
		f := newLedgerFixture(t, nil)

		sess, err := f.service.Connect(ownerContext())
		require.NoError(t, err)
		assert.Equal(t, owner, sess.Owner())
		assert.Equal(t, 1, f.sessions.Len())

		got, err := f.service.Session(sess.ID.String(), owner)
		require.NoError(t, err)
		assert.Same(t, sess, got)
	})

	t.Run("declined authorization", func(t *testing.T) {
		f := newLedgerFixture(t, nil)

		_, err := f.service.Connect(context.Background())
		assert.ErrorIs(t, err, models.ErrAuthorizationDeclined)
		assert.Equal(t, 0, f.sessions.Len())
		require.Len(t, f.errs, 1)
		assert.Equal(t, models.ClassAuthorizationDeclined, models.ClassifyError(f.errs[0]))
	})

	t.Run("client failure on first fetch closes the session", func(t *testing.T) {
		client := &scriptedClient{fetchErr: fmt.Errorf("%w: timeout", models.ErrServiceUnavailable)}
		f := newFixture(t, scriptedConnector{client: client}, nil)

		_, err := f.service.Connect(ownerContext())
		assert.ErrorIs(t, err, models.ErrServiceUnavailable)
		assert.Equal(t, 0, f.sessions.Len())
		require.Len(t, f.errs, 1)
		assert.Equal(t, models.ClassServiceFailure, models.ClassifyError(f.errs[0]))
	})

	t.Run("malformed history closes the half-open session", func(t *testing.T) {
		client := &scriptedClient{records: []models.ConsentRecord{{Address: "", Permission: models.PermissionAllowed}}}
		f := newFixture(t, scriptedConnector{client: client}, nil)

		_, err := f.service.Connect(ownerContext())
		assert.ErrorIs(t, err, models.ErrMalformedConsentRecord)
		assert.Equal(t, 0, f.sessions.Len())
	})
}

func TestConsentService_AllowDenyAndList(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx := ownerContext()
	sess, err := f.service.Connect(ctx)
	require.NoError(t, err)

	resp, err := f.service.Allow(ctx, sess, "0xa", true)
	require.NoError(t, err)
	assert.Equal(t, &models.PermissionActionResponse{
		Address: "0xa", Permission: models.PermissionAllowed, Event: models.EventSubscribed,
	}, resp)

	_, err = f.service.Deny(ctx, sess, "0xb", true)
	require.NoError(t, err)
	_, err = f.service.Allow(ctx, sess, "0xc", true)
	require.NoError(t, err)
	resp, err = f.service.Deny(ctx, sess, "0xa", true)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionDenied, resp.Permission)
	assert.Equal(t, models.EventUnsubscribed, resp.Event)

	list, err := f.service.ListConsents(ctx, sess, false)
	require.NoError(t, err)
	assert.Equal(t, owner, list.Owner)
	assert.Equal(t, 3, list.Count)
	assert.Equal(t, 1, list.Allowed)
	assert.Equal(t, 2, list.Denied)
	require.Len(t, list.Consents, 3)
	assert.Equal(t, "0xc", list.Consents[0].Address)
	assert.Equal(t, "0xb", list.Consents[1].Address)
	assert.Equal(t, "0xa", list.Consents[2].Address)
	assert.Equal(t, []string{"0xc"}, list.AllowedAddresses)
	assert.Empty(t, list.UnknownAddresses)
	assert.Equal(t, []string{"0xb", "0xa"}, list.DeniedAddresses)

	require.Len(t, f.notifier.events, 4)
	assert.Equal(t, models.EventSubscribed, f.notifier.events[0].Type)
	assert.Equal(t, "0xa", f.notifier.events[0].PeerAddress)
	assert.Equal(t, owner, f.notifier.events[0].OwnerAddress)
	assert.Equal(t, models.EventUnsubscribed, f.notifier.events[3].Type)
	assert.Empty(t, f.errs)
}

func TestConsentService_ConfirmationDeclined(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx := ownerContext()
	sess, err := f.service.Connect(ctx)
	require.NoError(t, err)

	_, err = f.service.Deny(ctx, sess, "0xa", false)
	assert.ErrorIs(t, err, models.ErrConfirmationDeclined)
	assert.Empty(t, f.notifier.events)
	require.Len(t, f.errs, 1)
	assert.Equal(t, models.ClassConfirmationDeclined, models.ClassifyError(f.errs[0]))

	records, err := f.service.RefreshConsentList(ctx, sess)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1, f.sessions.Len(), "declining keeps the session open")
}

func TestConsentService_InvalidInput(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx := ownerContext()
	sess, err := f.service.Connect(ctx)
	require.NoError(t, err)

	_, err = f.service.Allow(ctx, sess, "  ", true)
	assert.ErrorIs(t, err, models.ErrInvalidAddress)

	_, err = f.service.Allow(ctx, sess, " 0xa", true)
	assert.ErrorIs(t, err, models.ErrInvalidAddress)
	assert.Empty(t, f.notifier.events)

	_, err = f.service.Apply(ctx, sess, "0xa", models.PermissionActionRequest{Action: "block", Confirmed: true})
	assert.ErrorIs(t, err, models.ErrInvalidPermission)

	resp, err := f.service.Apply(ctx, sess, "0xa", models.PermissionActionRequest{Action: models.ActionDeny, Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, models.PermissionDenied, resp.Permission)
}

func TestConsentService_SetPermissionFailureClosesSession(t *testing.T) {
	client := &scriptedClient{setErr: fmt.Errorf("%w: write failed", models.ErrServiceUnavailable)}
	f := newFixture(t, scriptedConnector{client: client}, nil)
	ctx := ownerContext()
	sess, err := f.service.Connect(ctx)
	require.NoError(t, err)

	_, err = f.service.Allow(ctx, sess, "0xa", true)
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	assert.Equal(t, 0, f.sessions.Len())
	assert.Empty(t, f.notifier.events)

	_, err = f.service.Session(sess.ID.String(), owner)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestConsentService_NotifierFailureDoesNotFailChange(t *testing.T) {
	f := newLedgerFixture(t, nil)
	f.notifier.err = errors.New("stream unavailable")
	ctx := ownerContext()
	sess, err := f.service.Connect(ctx)
	require.NoError(t, err)

	resp, err := f.service.Allow(ctx, sess, "0xa", true)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionAllowed, resp.Permission)
	assert.Len(t, f.notifier.events, 1)
}

func TestConsentService_ListConsentsEnrichment(t *testing.T) {
	alice := models.Profile{Address: "0xa", SocialNames: []string{"alice"}, DomainNames: []string{"alice.eth"}}

	t.Run("attaches profiles", func(t *testing.T) {
		f := newLedgerFixture(t, stubResolver{profiles: map[string]models.Profile{"0xa": alice}})
		ctx := ownerContext()
		sess, err := f.service.Connect(ctx)
		require.NoError(t, err)
		_, err = f.service.Allow(ctx, sess, "0xa", true)
		require.NoError(t, err)
		_, err = f.service.Deny(ctx, sess, "0xb", true)
		require.NoError(t, err)

		list, err := f.service.ListConsents(ctx, sess, true)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, list.Consents[0].SocialNames)
		assert.Equal(t, []string{"alice.eth"}, list.Consents[0].DomainNames)
		assert.Empty(t, list.Consents[1].SocialNames)
	})

	t.Run("resolver failure keeps the list", func(t *testing.T) {
		f := newLedgerFixture(t, stubResolver{err: fmt.Errorf("%w: 503", models.ErrServiceUnavailable)})
		ctx := ownerContext()
		sess, err := f.service.Connect(ctx)
		require.NoError(t, err)
		_, err = f.service.Allow(ctx, sess, "0xa", true)
		require.NoError(t, err)

		list, err := f.service.ListConsents(ctx, sess, true)
		require.NoError(t, err)
		assert.Equal(t, 1, list.Count)
		assert.Empty(t, list.Consents[0].SocialNames)
		require.Len(t, f.errs, 1)
		assert.Equal(t, 1, f.sessions.Len(), "resolver failures do not close the session")
	})
}

func TestConsentService_ExportCSV(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx := ownerContext()
	sess, err := f.service.Connect(ctx)
	require.NoError(t, err)

	_, err = f.service.Deny(ctx, sess, "0xdef", true)
	require.NoError(t, err)
	_, err = f.service.Allow(ctx, sess, "0xabc", true)
	require.NoError(t, err)

	out, err := f.service.ExportCSV(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "Address,State\n0xabc,Allowed\n0xdef,Denied", string(out))
}

func TestConsentService_Disconnect(t *testing.T) {
	f := newLedgerFixture(t, nil)
	sess, err := f.service.Connect(ownerContext())
	require.NoError(t, err)

	require.NoError(t, f.service.Disconnect(sess.ID))
	assert.ErrorIs(t, f.service.Disconnect(sess.ID), models.ErrSessionNotFound)
}

func TestConsentService_RecordPeer(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx := ownerContext()
	sess, err := f.service.Connect(ctx)
	require.NoError(t, err)

	view, err := f.service.RecordPeer(ctx, sess, "0xnew")
	require.NoError(t, err)
	assert.Equal(t, &models.ConsentView{Address: "0xnew", Permission: models.PermissionUnknown}, view)

	_, err = f.service.Deny(ctx, sess, "0xbad", true)
	require.NoError(t, err)
	_, err = f.service.Allow(ctx, sess, "0xfriend", true)
	require.NoError(t, err)

	view, err = f.service.RecordPeer(ctx, sess, "0xbad")
	require.NoError(t, err)
	assert.Equal(t, models.PermissionDenied, view.Permission)

	list, err := f.service.ListConsents(ctx, sess, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xfriend"}, list.AllowedAddresses)
	assert.Equal(t, []string{"0xnew"}, list.UnknownAddresses)
	assert.Equal(t, []string{"0xbad"}, list.DeniedAddresses)
	assert.Equal(t, 1, list.Unknown)

	_, err = f.service.RecordPeer(ctx, sess, "")
	assert.ErrorIs(t, err, models.ErrInvalidAddress)
}

func TestConsentService_RecordPeerUnsupportedClient(t *testing.T) {
	f := newFixture(t, scriptedConnector{client: &scriptedClient{}}, nil)
	ctx := ownerContext()
	sess, err := f.service.Connect(ctx)
	require.NoError(t, err)

	_, err = f.service.RecordPeer(ctx, sess, "0xa")
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	assert.Equal(t, models.ClassServiceFailure, models.ClassifyError(err))
	assert.Equal(t, 1, f.sessions.Len())
}

func TestConsentService_ReconcileExternal(t *testing.T) {
	f := newLedgerFixture(t, nil)

	var req models.ReconcileRequest
	require.NoError(t, json.Unmarshal([]byte(`{"records":[
		{"value":"0xa","permissionType":"denied"},
		{"address":"0xb","state":"unknown"},
		{"address":"0xa","permission":"allowed"},
		{"address":"0xc","state":"denied"}
	]}`), &req))

	out, err := f.service.ReconcileExternal(req.Records)
	require.NoError(t, err)
	assert.Equal(t, []models.ConsentRecord{
		{Address: "0xa", Permission: models.PermissionAllowed},
		{Address: "0xb", Permission: models.PermissionUnknown},
		{Address: "0xc", Permission: models.PermissionDenied},
	}, out)

	require.NoError(t, json.Unmarshal([]byte(`{"records":[{"address":" 0xa","permission":"allowed"}]}`), &req))
	_, err = f.service.ReconcileExternal(req.Records)
	assert.ErrorIs(t, err, models.ErrMalformedConsentRecord)
	assert.ErrorIs(t, err, models.ErrInvalidAddress)
	require.Len(t, f.errs, 1)
}
