// ABOUTME: Append-only audit trail for authorization decisions
// ABOUTME: Records every allow and deny with severity and request correlation

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Audit severities. Tenant-isolation violations are incidents and logged
// at elevated severity in addition to the ordinary denial record.
const (
	SeverityInfo     = "info"
	SeverityIncident = "incident"
)

// AppendAuditDecision appends a decision to the audit trail.
// Generates ID and Timestamp if not set. Entries are never updated.
func (s *SQLiteStore) AppendAuditDecision(ctx context.Context, d *AuditDecision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	if d.Severity == "" {
		d.Severity = SeverityInfo
	}

	query := `
		INSERT INTO audit_decisions (id, session_id, user_id, tenant_id, resource,
			action, outcome, reason, severity, request_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID,
		d.SessionID,
		d.UserID,
		d.TenantID,
		d.Resource,
		d.Action,
		string(d.Outcome),
		d.Reason,
		d.Severity,
		d.RequestID,
		d.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting audit decision: %w", err)
	}
	return nil
}

// ListAuditDecisions returns audit entries matching the filter, newest first.
func (s *SQLiteStore) ListAuditDecisions(ctx context.Context, f AuditFilter) ([]*AuditDecision, error) {
	var conds []string
	var args []any

	if f.Since != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if f.Until != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}
	if f.SessionID != nil {
		conds = append(conds, "session_id = ?")
		args = append(args, *f.SessionID)
	}
	if f.TenantID != nil {
		conds = append(conds, "tenant_id = ?")
		args = append(args, *f.TenantID)
	}
	if f.Resource != nil {
		conds = append(conds, "resource = ?")
		args = append(args, *f.Resource)
	}
	if f.Outcome != nil {
		conds = append(conds, "outcome = ?")
		args = append(args, string(*f.Outcome))
	}
	if f.Severity != nil {
		conds = append(conds, "severity = ?")
		args = append(args, *f.Severity)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT id, session_id, user_id, tenant_id, resource, action, outcome,
			reason, severity, request_id, timestamp
		FROM audit_decisions
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*AuditDecision
	for rows.Next() {
		var (
			d         AuditDecision
			outcome   string
			timestamp string
		)
		if err := rows.Scan(&d.ID, &d.SessionID, &d.UserID, &d.TenantID, &d.Resource,
			&d.Action, &outcome, &d.Reason, &d.Severity, &d.RequestID, &timestamp); err != nil {
			return nil, fmt.Errorf("scanning audit decision: %w", err)
		}
		d.Outcome = AuditOutcome(outcome)
		if d.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}
