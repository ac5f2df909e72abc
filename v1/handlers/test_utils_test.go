package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xmtp/allow-list-management/v1/messaging"
	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/services"
	"github.com/xmtp/allow-list-management/v1/session"
	"github.com/xmtp/allow-list-management/v1/wallet"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testOwner = "0xowner"

type testEnv struct {
	db        *gorm.DB
	seq       int64
	connector *messaging.LedgerConnector
	sessions  *session.Manager
	service   *services.ConsentService
	sessionH  *SessionHandler
	consentH  *ConsentHandler
}

// setupTestEnv wires a consent service over an isolated in-memory ledger
func setupTestEnv(t *testing.T) *testEnv {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.ConsentEntry{}))

	connector, err := messaging.NewLedgerConnector(db, models.EnvLocal)
	require.NoError(t, err)

	sessions := session.NewManager(models.EnvLocal, time.Minute)
	service, err := services.NewConsentService(sessions, wallet.NewContextProvider(), connector, nil, nil)
	require.NoError(t, err)

	return &testEnv{
		db:        db,
		connector: connector,
		sessions:  sessions,
		service:   service,
		sessionH:  NewSessionHandler(service),
		consentH:  NewConsentHandler(service),
	}
}

// seed inserts consent history for owner straight into the ledger table, in
// order. Unknown entries are allowed here even though clients cannot set them.
func (e *testEnv) seed(t *testing.T, owner string, changes ...models.ConsentRecord) {
	for _, c := range changes {
		e.seq++
		entry := models.ConsentEntry{
			EntryID:      uuid.New(),
			OwnerAddress: owner,
			PeerAddress:  c.Address,
			Permission:   string(c.Permission),
			Env:          models.EnvLocal,
			Sequence:     e.seq,
			CreatedAt:    time.Now().UTC(),
		}
		require.NoError(t, e.db.Create(&entry).Error)
	}
}

// openSession connects owner through the service and returns the session ID
func (e *testEnv) openSession(t *testing.T, owner string) string {
	sess, err := e.service.Connect(wallet.WithAddress(context.Background(), owner))
	require.NoError(t, err)
	return sess.ID.String()
}

// newRequest builds an authenticated request with path values set
func newRequest(method, target, owner string, body io.Reader, pathValues map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if owner != "" {
		req = req.WithContext(wallet.WithAddress(req.Context(), owner))
	}
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	return req
}
