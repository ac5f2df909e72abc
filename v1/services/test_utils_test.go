package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xmtp/allow-list-management/v1/messaging"
	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/session"
	"github.com/xmtp/allow-list-management/v1/social"
	"github.com/xmtp/allow-list-management/v1/wallet"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const owner = "0xowner"

// SetupSQLiteTestDB creates an isolated in-memory ledger database
func SetupSQLiteTestDB(t *testing.T) *gorm.DB {
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
	return db
}

type recordingNotifier struct {
	events []models.ConsentEvent
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, event models.ConsentEvent) error {
	n.events = append(n.events, event)
	return n.err
}

type stubResolver struct {
	profiles map[string]models.Profile
	err      error
}

func (r stubResolver) Resolve(ctx context.Context, addresses []string) (map[string]models.Profile, error) {
	return r.profiles, r.err
}

// scriptedClient returns canned results so failures can be injected per call
type scriptedClient struct {
	address  string
	records  []models.ConsentRecord
	fetchErr error
	setErr   error
}

func (c *scriptedClient) Address() string { return c.address }

func (c *scriptedClient) FetchConsentRecords(ctx context.Context) ([]models.ConsentRecord, error) {
	return c.records, c.fetchErr
}

func (c *scriptedClient) SetPermission(ctx context.Context, peer string, p models.Permission) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.records = append(c.records, models.ConsentRecord{Address: peer, Permission: p})
	return nil
}

func (c *scriptedClient) CurrentPermission(ctx context.Context, peer string) (models.Permission, error) {
	current := models.PermissionUnknown
	for _, r := range c.records {
		if r.Address == peer {
			current = r.Permission
		}
	}
	return current, nil
}

type scriptedConnector struct{ client *scriptedClient }

func (c scriptedConnector) Connect(ctx context.Context, signer wallet.Signer) (messaging.Client, error) {
	c.client.address = signer.Address()
	return c.client, nil
}

type fixture struct {
	service  *ConsentService
	sessions *session.Manager
	notifier *recordingNotifier
	errs     []error
}

func newFixture(t *testing.T, connector messaging.Connector, resolver social.Resolver) *fixture {
	f := &fixture{
		sessions: session.NewManager(models.EnvLocal, time.Minute),
		notifier: &recordingNotifier{},
	}
	service, err := NewConsentService(f.sessions, wallet.NewContextProvider(), connector, resolver, f.notifier)
	require.NoError(t, err)
	service.SetErrorCallback(func(err error) { f.errs = append(f.errs, err) })
	f.service = service
	return f
}

func newLedgerFixture(t *testing.T, resolver social.Resolver) *fixture {
	connector, err := messaging.NewLedgerConnector(SetupSQLiteTestDB(t), models.EnvLocal)
	require.NoError(t, err)
	return newFixture(t, connector, resolver)
}

func ownerContext() context.Context {
	return wallet.WithAddress(context.Background(), owner)
}
