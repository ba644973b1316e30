// ABOUTME: Stored API token persistence for the command channel
// ABOUTME: Only bcrypt hashes of token secrets are written to the database

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateAPIToken inserts a new API token record.
func (s *SQLiteStore) CreateAPIToken(ctx context.Context, t *APIToken) error {
	query := `
		INSERT INTO api_tokens (id, name, user_id, tenant_id, secret_hash, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
	`
	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.Name,
		t.UserID,
		t.TenantID,
		t.SecretHash,
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting api token: %w", err)
	}
	return nil
}

// GetAPIToken retrieves an API token by its public ID segment.
func (s *SQLiteStore) GetAPIToken(ctx context.Context, id string) (*APIToken, error) {
	query := `
		SELECT id, name, user_id, tenant_id, secret_hash, created_at, last_used_at
		FROM api_tokens WHERE id = ?
	`
	var (
		t          APIToken
		createdAt  string
		lastUsedAt *string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.UserID, &t.TenantID, &t.SecretHash, &createdAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning api token: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if lastUsedAt != nil {
		ts, err := parseTime(*lastUsedAt)
		if err != nil {
			return nil, err
		}
		t.LastUsedAt = &ts
	}
	return &t, nil
}

// TouchAPIToken records when the token last authenticated successfully.
func (s *SQLiteStore) TouchAPIToken(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("touching api token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking touch result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
