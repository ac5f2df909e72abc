package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xmtp/allow-list-management/internal/monitoring"
	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/wallet"
	"gorm.io/gorm"
)

const ledgerTarget = "consent_ledger"

// LedgerConnector connects wallets to a consent ledger stored through GORM.
type LedgerConnector struct {
	db  *gorm.DB
	env string
	seq atomic.Int64
	now func() time.Time
}

// NewLedgerConnector creates a connector for the given messaging environment
func NewLedgerConnector(db *gorm.DB, env string) (*LedgerConnector, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger connector requires a database")
	}
	if !models.IsValidEnv(env) {
		return nil, fmt.Errorf("invalid messaging env %q: must be one of local, dev, production", env)
	}
	return &LedgerConnector{db: db, env: env, now: time.Now}, nil
}

// Env returns the messaging environment the connector writes to
func (c *LedgerConnector) Env() string {
	return c.env
}

// Connect returns a client for signer after checking the ledger is reachable.
func (c *LedgerConnector) Connect(ctx context.Context, signer wallet.Signer) (Client, error) {
	if signer == nil || strings.TrimSpace(signer.Address()) == "" {
		return nil, fmt.Errorf("%w: signer has no address", models.ErrAuthorizationDeclined)
	}

	start := time.Now()
	sqlDB, err := c.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	monitoring.RecordExternalCall(ledgerTarget, "connect", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: connect ledger: %w", models.ErrServiceUnavailable, err)
	}

	slog.Debug("Connected messaging client", "address", signer.Address(), "env", c.env)
	return &LedgerClient{connector: c, address: signer.Address()}, nil
}

// nextSequence returns a strictly increasing write sequence seeded from the clock
func (c *LedgerConnector) nextSequence(now time.Time) int64 {
	for {
		last := c.seq.Load()
		next := now.UnixNano()
		if next <= last {
			next = last + 1
		}
		if c.seq.CompareAndSwap(last, next) {
			return next
		}
	}
}

// LedgerClient is a messaging client backed by the consent ledger.
type LedgerClient struct {
	connector *LedgerConnector
	address   string
}

// Address returns the wallet address the client acts for
func (c *LedgerClient) Address() string {
	return c.address
}

// FetchConsentRecords returns every consent decision of the wallet, oldest first.
func (c *LedgerClient) FetchConsentRecords(ctx context.Context) ([]models.ConsentRecord, error) {
	var entries []models.ConsentEntry

	start := time.Now()
	err := c.connector.db.WithContext(ctx).
		Where("owner_address = ? AND env = ?", c.address, c.connector.env).
		Order("sequence ASC").
		Find(&entries).Error
	monitoring.RecordExternalCall(ledgerTarget, "fetch_consents", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch consent records: %w", models.ErrServiceUnavailable, err)
	}

	records := make([]models.ConsentRecord, len(entries))
	for i := range entries {
		records[i] = entries[i].ToConsentRecord()
	}
	return records, nil
}

// SetPermission appends an allow or deny decision for peer.
func (c *LedgerClient) SetPermission(ctx context.Context, peer string, permission models.Permission) error {
	if err := models.CheckAddress(peer); err != nil {
		return err
	}
	if !permission.IsSettable() {
		return fmt.Errorf("%w: only allowed or denied can be set, got %q", models.ErrInvalidPermission, permission)
	}

	now := c.connector.now().UTC()
	entry := models.ConsentEntry{
		EntryID:      uuid.New(),
		OwnerAddress: c.address,
		PeerAddress:  peer,
		Permission:   string(permission),
		Env:          c.connector.env,
		Sequence:     c.connector.nextSequence(now),
		CreatedAt:    now,
	}

	start := time.Now()
	err := c.connector.db.WithContext(ctx).Create(&entry).Error
	monitoring.RecordExternalCall(ledgerTarget, "set_permission", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%w: set permission: %w", models.ErrServiceUnavailable, err)
	}
	return nil
}

// CurrentPermission returns the latest decision for peer, or unknown if none exists.
func (c *LedgerClient) CurrentPermission(ctx context.Context, peer string) (models.Permission, error) {
	if err := models.CheckAddress(peer); err != nil {
		return "", err
	}

	var entry models.ConsentEntry
	start := time.Now()
	err := c.connector.db.WithContext(ctx).
		Where("owner_address = ? AND env = ? AND peer_address = ?", c.address, c.connector.env, peer).
		Order("sequence DESC").
		First(&entry).Error
	monitoring.RecordExternalCall(ledgerTarget, "current_permission", time.Since(start), err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PermissionUnknown, nil
		}
		return "", fmt.Errorf("%w: current permission: %w", models.ErrServiceUnavailable, err)
	}
	return models.Permission(entry.Permission), nil
}

// RecordPeer marks peer as seen with an unknown decision when the ledger has no
// entry for it yet, and returns the peer's current permission either way.
func (c *LedgerClient) RecordPeer(ctx context.Context, peer string) (models.Permission, error) {
	if err := models.CheckAddress(peer); err != nil {
		return "", err
	}

	var current models.Permission
	start := time.Now()
	err := c.connector.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest models.ConsentEntry
		err := tx.Where("owner_address = ? AND env = ? AND peer_address = ?", c.address, c.connector.env, peer).
			Order("sequence DESC").
			First(&latest).Error
		if err == nil {
			current = models.Permission(latest.Permission)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := c.connector.now().UTC()
		entry := models.ConsentEntry{
			EntryID:      uuid.New(),
			OwnerAddress: c.address,
			PeerAddress:  peer,
			Permission:   string(models.PermissionUnknown),
			Env:          c.connector.env,
			Sequence:     c.connector.nextSequence(now),
			CreatedAt:    now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		current = models.PermissionUnknown
		return nil
	})
	monitoring.RecordExternalCall(ledgerTarget, "record_peer", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%w: record peer: %w", models.ErrServiceUnavailable, err)
	}
	return current, nil
}
