// ABOUTME: Cross-channel session lifecycle manager over the injected store
// ABOUTME: Handles creation, lookup, CAS touch with retry, revocation and expiry sweep

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/nexus-gateway/internal/apperr"
	"github.com/2389/nexus-gateway/internal/store"
)

// touchRetries bounds CAS retry attempts when concurrent channels touch
// the same session. Conflicts are expected and resolved by re-reading.
const touchRetries = 5

// Manager owns Session records. Sessions are channel-independent: a
// session created via one channel resolves identically via any other.
type Manager struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewManager creates a session manager. Pass nil logger for default.
func NewManager(s store.Store, ttl time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  s,
		ttl:    ttl,
		logger: logger.With("component", "session"),
	}
}

// Create allocates a fresh session for the given user on the given channel.
// Initial version is 0 and expiry is now + the configured TTL.
func (m *Manager) Create(ctx context.Context, userID, tenantID *string, channel string, metadata map[string]any) (*store.Session, error) {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]any{}
	}
	sess := &store.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		TenantID:     tenantID,
		Channels:     []string{channel},
		Status:       store.SessionActive,
		Metadata:     metadata,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.ttl),
		Version:      0,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	m.logger.Info("session created",
		"session_id", sess.ID,
		"channel", channel,
		"tenant_id", tenantID)
	return sess, nil
}

// Anonymous creates a session with no user or tenant, used for public
// operations.
func (m *Manager) Anonymous(ctx context.Context, channel string) (*store.Session, error) {
	return m.Create(ctx, nil, nil, channel, nil)
}

// Get resolves a session by ID. Terminal sessions (expired, revoked)
// resolve as authentication failures so callers re-authenticate.
func (m *Manager) Get(ctx context.Context, id string) (*store.Session, error) {
	sess, err := m.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Authentication("unknown session", err)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	switch sess.Status {
	case store.SessionExpired:
		return nil, apperr.Authentication("session expired", nil)
	case store.SessionRevoked:
		return nil, apperr.Authentication("session revoked", nil)
	}
	if !sess.ExpiresAt.After(time.Now().UTC()) {
		// Overdue but not yet swept
		return nil, apperr.Authentication("session expired", nil)
	}
	return sess, nil
}

// Touch adds the channel to the session's channel set if absent, refreshes
// last-activity and bumps the version. Concurrent touches from multiple
// channels are resolved by compare-and-swap with retry against a fresh read.
func (m *Manager) Touch(ctx context.Context, id, channel string) (*store.Session, error) {
	var lastErr error
	for attempt := 0; attempt < touchRetries; attempt++ {
		sess, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		if !sess.HasChannel(channel) {
			sess.Channels = append(sess.Channels, channel)
		}
		sess.LastActivity = time.Now().UTC()
		sess.ExpiresAt = sess.LastActivity.Add(m.ttl)

		err = m.store.UpdateSession(ctx, sess)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("touching session: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("touching session %s: retries exhausted: %w", id, lastErr)
}

// Revoke terminates a session explicitly. Revocation is terminal; no
// further touch succeeds.
func (m *Manager) Revoke(ctx context.Context, id string) error {
	for attempt := 0; attempt < touchRetries; attempt++ {
		sess, err := m.store.GetSession(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("session:" + id)
		}
		if err != nil {
			return fmt.Errorf("resolving session: %w", err)
		}
		if sess.Status != store.SessionActive {
			return nil
		}

		sess.Status = store.SessionRevoked
		err = m.store.UpdateSession(ctx, sess)
		if err == nil {
			m.logger.Info("session revoked", "session_id", id)
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return fmt.Errorf("revoking session: %w", err)
		}
	}
	return fmt.Errorf("revoking session %s: retries exhausted", id)
}

// Sweep marks overdue sessions expired. Idempotent and safe to run
// concurrently with lookups.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (int, error) {
	count, err := m.store.ExpireSessions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	if count > 0 {
		m.logger.Info("expired sessions swept", "count", count)
	}
	return count, nil
}

// RunSweeper runs the expiry sweep on the given interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx, time.Now().UTC()); err != nil {
				m.logger.Error("sweep failed", "error", err)
			}
		}
	}
}
