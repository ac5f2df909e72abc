// Package session holds the explicit wallet sessions of the consent service.
// A session is created by a successful connect and torn down on disconnect,
// expiry or a client failure.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xmtp/allow-list-management/v1/messaging"
	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/wallet"
)

// DefaultTTL is how long an unused session stays open
const DefaultTTL = 30 * time.Minute

// Session is the connected wallet and its messaging client
type Session struct {
	ID        uuid.UUID
	Signer    wallet.Signer
	Client    messaging.Client
	Env       string
	CreatedAt time.Time

	lastUsed time.Time
}

// Owner returns the wallet address that opened the session
func (s *Session) Owner() string {
	return s.Signer.Address()
}

// ToResponse converts the session to its API representation
func (s *Session) ToResponse() models.SessionResponse {
	return models.SessionResponse{
		SessionID: s.ID.String(),
		Address:   s.Owner(),
		Env:       s.Env,
		CreatedAt: s.CreatedAt,
	}
}

// Manager owns the open sessions. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	env      string
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a manager for sessions in the given messaging env.
// A non-positive ttl uses DefaultTTL.
func NewManager(env string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		env:      env,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Open requests the wallet account from provider, connects a messaging client
// for it and registers the new session.
func (m *Manager) Open(ctx context.Context, provider wallet.Provider, connector messaging.Connector) (*Session, error) {
	signer, err := provider.RequestAccounts(ctx)
	if err != nil {
		return nil, err
	}
	client, err := connector.Connect(ctx, signer)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	s := &Session{
		ID:        uuid.New(),
		Signer:    signer,
		Client:    client,
		Env:       m.env,
		CreatedAt: now,
		lastUsed:  now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Info("Opened consent session", "session_id", s.ID, "owner", s.Owner(), "env", s.Env)
	return s, nil
}

// Get returns the session with the given ID if owner opened it. Expired
// sessions are removed and reported as not found.
func (m *Manager) Get(id, owner string) (*Session, error) {
	sessionID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", models.ErrSessionNotFound, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}
	now := m.now()
	if now.Sub(s.lastUsed) > m.ttl {
		delete(m.sessions, sessionID)
		slog.Info("Consent session expired", "session_id", sessionID, "owner", s.Owner())
		return nil, fmt.Errorf("%w: %s expired", models.ErrSessionNotFound, sessionID)
	}
	if s.Owner() != owner {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionForbidden, sessionID)
	}

	s.lastUsed = now
	return s, nil
}

// Close tears the session down
func (m *Manager) Close(id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	slog.Info("Closed consent session", "session_id", id, "owner", s.Owner())
	return nil
}

// CloseOnError tears the session down when err means its client can no longer
// be trusted: a messaging failure or a revoked wallet authorization. It
// reports whether the session was closed.
func (m *Manager) CloseOnError(id uuid.UUID, err error) bool {
	switch models.ClassifyError(err) {
	case models.ClassServiceFailure, models.ClassAuthorizationDeclined:
	default:
		return false
	}
	if closeErr := m.Close(id); closeErr != nil {
		return false
	}
	slog.Warn("Closed consent session after failure", "session_id", id, "error", err)
	return true
}

// Sweep removes sessions idle for longer than the TTL and returns how many it removed
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.lastUsed) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Swept expired consent sessions", "removed", removed, "open", len(m.sessions))
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			m.Sweep(t)
		}
	}
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
