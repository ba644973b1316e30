// ABOUTME: Store interface and record types for nexus-gateway persistence
// ABOUTME: Defines Session, Run, Event, AuditDecision and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when a compare-and-swap update observes a
// stale session version. Callers re-read and retry rather than overwrite.
var ErrVersionConflict = errors.New("version conflict")

// SessionStatus tracks the session lifecycle. Expired and revoked are
// terminal; no touch succeeds once a session leaves active.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionExpired SessionStatus = "expired"
	SessionRevoked SessionStatus = "revoked"
)

// Session is a channel-independent identity record tied to a token.
// The same session resolves identically regardless of which channel
// presents its token.
type Session struct {
	ID           string
	UserID       *string // nil for anonymous sessions
	TenantID     *string // nil for tenant-less sessions
	Channels     []string
	Status       SessionStatus
	Metadata     map[string]any
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	Version      int64 // bumped on every mutation, CAS guarded
}

// HasChannel reports whether the session has been used via the named channel.
func (s *Session) HasChannel(channel string) bool {
	for _, c := range s.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// RunStatus tracks an execution run. Transitions are monotonic:
// queued -> running -> {completed, failed, cancelled}, all terminal.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transition.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// Run is one execution instance of a workflow. The run ID is globally
// unique and immutable once assigned.
type Run struct {
	ID              string
	WorkflowID      string
	WorkflowVersion int
	SessionID       string
	TenantID        *string
	Inputs          map[string]any
	Status          RunStatus
	Result          map[string]any // set on completed
	Error           string         // set on failed
	StartedAt       time.Time
	EndedAt         *time.Time
}

// Event is an immutable notification of a state change. Never mutated
// after publication; subscribers share read access.
type Event struct {
	ID        string
	Type      string // dot-separated hierarchical name, e.g. "workflow.completed"
	Channel   string // source channel name
	SessionID string
	TenantID  *string
	Payload   map[string]any
	Timestamp time.Time
}

// AuditOutcome is the result of an authorization decision.
type AuditOutcome string

const (
	AuditAllow AuditOutcome = "allow"
	AuditDeny  AuditOutcome = "deny"
)

// AuditDecision records one authorization decision. The audit trail is
// append-only; entries are never updated.
type AuditDecision struct {
	ID        string
	SessionID string
	UserID    *string
	TenantID  *string
	Resource  string
	Action    string
	Outcome   AuditOutcome
	Reason    string
	Severity  string // "info" for ordinary decisions, "incident" for tenant violations
	RequestID string
	Timestamp time.Time
}

// AuditFilter specifies filtering options for listing audit decisions.
type AuditFilter struct {
	Since     *time.Time
	Until     *time.Time
	SessionID *string
	TenantID  *string
	Resource  *string
	Outcome   *AuditOutcome
	Severity  *string
	Limit     int // max results (default 100, max 1000)
}

// APIToken is a stored credential for the command channel. Only the bcrypt
// hash of the secret is persisted.
type APIToken struct {
	ID         string
	Name       string
	UserID     string
	TenantID   *string
	SecretHash []byte
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// Store defines the persistence boundary for sessions, runs, events,
// audit decisions and API tokens. The orchestration core only ever talks
// to this interface; backends are injected at construction time.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// UpdateSession applies a compare-and-swap on Version: the update only
	// succeeds when the stored version equals s.Version, and bumps it by one.
	UpdateSession(ctx context.Context, s *Session) error
	ExpireSessions(ctx context.Context, now time.Time) (int, error)

	// Runs
	CreateRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRun(ctx context.Context, r *Run) error
	ListRunsByStatus(ctx context.Context, status RunStatus) ([]*Run, error)

	// Events (persisted delivery mode only)
	SaveEvent(ctx context.Context, e *Event) error
	ListEventsSince(ctx context.Context, sinceID string, tenantID *string, limit int) ([]*Event, error)

	// Audit
	AppendAuditDecision(ctx context.Context, d *AuditDecision) error
	ListAuditDecisions(ctx context.Context, f AuditFilter) ([]*AuditDecision, error)

	// API tokens
	CreateAPIToken(ctx context.Context, t *APIToken) error
	GetAPIToken(ctx context.Context, id string) (*APIToken, error)
	TouchAPIToken(ctx context.Context, id string, at time.Time) error

	Close() error
}
