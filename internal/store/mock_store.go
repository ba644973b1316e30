// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	runs     map[string]*Run
	events   []*Event
	audit    []*AuditDecision
	tokens   map[string]*APIToken
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*Session),
		runs:     make(map[string]*Run),
		tokens:   make(map[string]*APIToken),
	}
}

// CreateSession stores a new session.
func (m *MockStore) CreateSession(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := copySession(sess)
	m.sessions[s.ID] = s
	return nil
}

// GetSession retrieves a session by ID.
func (m *MockStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

// UpdateSession applies a compare-and-swap update on the version counter.
func (m *MockStore) UpdateSession(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[sess.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != sess.Version {
		return ErrVersionConflict
	}

	s := copySession(sess)
	s.Version++
	m.sessions[s.ID] = s
	sess.Version++
	return nil
}

// ExpireSessions marks overdue active sessions as expired.
func (m *MockStore) ExpireSessions(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int
	for _, s := range m.sessions {
		if s.Status == SessionActive && !s.ExpiresAt.After(now) {
			s.Status = SessionExpired
			s.Version++
			count++
		}
	}
	return count, nil
}

// CreateRun stores a new run.
func (m *MockStore) CreateRun(ctx context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := copyRun(r)
	m.runs[run.ID] = run
	return nil
}

// GetRun retrieves a run by ID.
func (m *MockStore) GetRun(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRun(r), nil
}

// UpdateRun writes the run's current status, result and error.
func (m *MockStore) UpdateRun(ctx context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[r.ID]; !ok {
		return ErrNotFound
	}
	m.runs[r.ID] = copyRun(r)
	return nil
}

// ListRunsByStatus returns runs in the given status, oldest first.
func (m *MockStore) ListRunsByStatus(ctx context.Context, status RunStatus) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var runs []*Run
	for _, r := range m.runs {
		if r.Status == status {
			runs = append(runs, copyRun(r))
		}
	}
	return runs, nil
}

// SaveEvent appends an event in publish order.
func (m *MockStore) SaveEvent(ctx context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := *e
	m.events = append(m.events, &ev)
	return nil
}

// ListEventsSince replays persisted events after sinceID, tenant scoped.
func (m *MockStore) ListEventsSince(ctx context.Context, sinceID string, tenantID *string, limit int) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = defaultEventListLimit
	}

	start := 0
	if sinceID != "" {
		found := false
		for i, e := range m.events {
			if e.ID == sinceID {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, ErrNotFound
		}
	}

	var out []*Event
	for _, e := range m.events[start:] {
		if tenantID != nil && e.TenantID != nil && *e.TenantID != *tenantID {
			continue
		}
		ev := *e
		out = append(out, &ev)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AppendAuditDecision appends a decision to the audit trail.
func (m *MockStore) AppendAuditDecision(ctx context.Context, d *AuditDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dec := *d
	if dec.ID == "" {
		dec.ID = "audit-" + time.Now().UTC().Format("150405.000000000")
	}
	if dec.Timestamp.IsZero() {
		dec.Timestamp = time.Now().UTC()
	}
	if dec.Severity == "" {
		dec.Severity = SeverityInfo
	}
	m.audit = append(m.audit, &dec)
	return nil
}

// ListAuditDecisions returns matching audit entries, newest first.
func (m *MockStore) ListAuditDecisions(ctx context.Context, f AuditFilter) ([]*AuditDecision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*AuditDecision
	for i := len(m.audit) - 1; i >= 0; i-- {
		d := m.audit[i]
		if f.Since != nil && d.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && d.Timestamp.After(*f.Until) {
			continue
		}
		if f.SessionID != nil && d.SessionID != *f.SessionID {
			continue
		}
		if f.TenantID != nil && (d.TenantID == nil || *d.TenantID != *f.TenantID) {
			continue
		}
		if f.Resource != nil && d.Resource != *f.Resource {
			continue
		}
		if f.Outcome != nil && d.Outcome != *f.Outcome {
			continue
		}
		if f.Severity != nil && d.Severity != *f.Severity {
			continue
		}
		dec := *d
		out = append(out, &dec)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// CreateAPIToken stores a new API token.
func (m *MockStore) CreateAPIToken(ctx context.Context, t *APIToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok := *t
	m.tokens[tok.ID] = &tok
	return nil
}

// GetAPIToken retrieves an API token by ID.
func (m *MockStore) GetAPIToken(ctx context.Context, id string) (*APIToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	tok := *t
	return &tok, nil
}

// TouchAPIToken records the token's last successful authentication.
func (m *MockStore) TouchAPIToken(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[id]
	if !ok {
		return ErrNotFound
	}
	used := at
	t.LastUsedAt = &used
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error { return nil }

func copySession(s *Session) *Session {
	out := *s
	out.Channels = append([]string(nil), s.Channels...)
	if s.Metadata != nil {
		out.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func copyRun(r *Run) *Run {
	out := *r
	if r.Inputs != nil {
		out.Inputs = make(map[string]any, len(r.Inputs))
		for k, v := range r.Inputs {
			out.Inputs[k] = v
		}
	}
	if r.Result != nil {
		out.Result = make(map[string]any, len(r.Result))
		for k, v := range r.Result {
			out.Result[k] = v
		}
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		out.EndedAt = &t
	}
	return &out
}
