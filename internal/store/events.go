// ABOUTME: Persisted event storage for at-least-once delivery and stream resumption
// ABOUTME: Events are append-only; rowid ordering backs the since-cursor replay

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const defaultEventListLimit = 100

// SaveEvent persists a published event. Events are immutable once saved.
func (s *SQLiteStore) SaveEvent(ctx context.Context, e *Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	query := `
		INSERT INTO events (id, type, channel, session_id, tenant_id, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		e.ID,
		e.Type,
		e.Channel,
		e.SessionID,
		e.TenantID,
		string(payload),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// ListEventsSince returns persisted events after the given event ID in
// publish order, scoped to the tenant when one is supplied. An empty
// sinceID replays from the beginning of retained history.
func (s *SQLiteStore) ListEventsSince(ctx context.Context, sinceID string, tenantID *string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = defaultEventListLimit
	}

	var sinceRow int64
	if sinceID != "" {
		err := s.db.QueryRowContext(ctx, `SELECT rowid FROM events WHERE id = ?`, sinceID).Scan(&sinceRow)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("resolving event cursor: %w", err)
		}
	}

	query := `
		SELECT id, type, channel, session_id, tenant_id, payload, timestamp
		FROM events
		WHERE rowid > ?
		  AND (? IS NULL OR tenant_id IS NULL OR tenant_id = ?)
		ORDER BY rowid ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, sinceRow, tenantID, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e         Event
			payload   string
			timestamp string
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Channel, &e.SessionID, &e.TenantID, &payload, &timestamp); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshaling payload: %w", err)
		}
		if e.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
