// ABOUTME: Session persistence methods for the SQLite store
// ABOUTME: Implements versioned compare-and-swap updates and the expiry sweep

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateSession inserts a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session) error {
	channels, err := json.Marshal(sess.Channels)
	if err != nil {
		return fmt.Errorf("marshaling channels: %w", err)
	}
	metadata, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	query := `
		INSERT INTO sessions (id, user_id, tenant_id, channels, status, metadata,
			created_at, last_activity, expires_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID,
		sess.UserID,
		sess.TenantID,
		string(channels),
		string(sess.Status),
		string(metadata),
		sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		sess.LastActivity.UTC().Format(time.RFC3339Nano),
		sess.ExpiresAt.UTC().Format(time.RFC3339Nano),
		sess.Version,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, user_id, tenant_id, channels, status, metadata,
			created_at, last_activity, expires_at, version
		FROM sessions WHERE id = ?
	`
	return scanSession(s.db.QueryRowContext(ctx, query, id))
}

// UpdateSession applies a compare-and-swap update. The write only succeeds
// when the stored version matches sess.Version; on success the stored and
// in-memory versions are bumped by one. A mismatch returns ErrVersionConflict.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *Session) error {
	channels, err := json.Marshal(sess.Channels)
	if err != nil {
		return fmt.Errorf("marshaling channels: %w", err)
	}
	metadata, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	query := `
		UPDATE sessions
		SET user_id = ?, tenant_id = ?, channels = ?, status = ?, metadata = ?,
			last_activity = ?, expires_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		sess.UserID,
		sess.TenantID,
		string(channels),
		string(sess.Status),
		string(metadata),
		sess.LastActivity.UTC().Format(time.RFC3339Nano),
		sess.ExpiresAt.UTC().Format(time.RFC3339Nano),
		sess.ID,
		sess.Version,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing session from a stale version
		if _, getErr := s.GetSession(ctx, sess.ID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	sess.Version++
	return nil
}

// ExpireSessions marks active sessions whose expiry has passed as expired.
// Idempotent and safe to run concurrently with lookups.
func (s *SQLiteStore) ExpireSessions(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE sessions
		SET status = ?, version = version + 1
		WHERE status = ? AND expires_at <= ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(SessionExpired),
		string(SessionActive),
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("expiring sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking sweep result: %w", err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess                               Session
		channels, metadata, status         string
		createdAt, lastActivity, expiresAt string
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TenantID, &channels, &status,
		&metadata, &createdAt, &lastActivity, &expiresAt, &sess.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.Status = SessionStatus(status)
	if err := json.Unmarshal([]byte(channels), &sess.Channels); err != nil {
		return nil, fmt.Errorf("unmarshaling channels: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &sess.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sess.LastActivity, err = parseTime(lastActivity); err != nil {
		return nil, err
	}
	if sess.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	return &sess, nil
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", v, err)
	}
	return t, nil
}
