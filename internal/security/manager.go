// ABOUTME: Security manager gating every gateway operation
// ABOUTME: Authentication, authorization with audit, rate limiting and tenant isolation

package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/nexus-gateway/internal/apperr"
	"github.com/2389/nexus-gateway/internal/auth"
	"github.com/2389/nexus-gateway/internal/metrics"
	"github.com/2389/nexus-gateway/internal/session"
	"github.com/2389/nexus-gateway/internal/store"
)

// CrossTenantRole is the explicit grant allowing access to resources
// outside the session's own tenant.
const CrossTenantRole = "cross-tenant"

// Config holds the collaborators the manager composes.
type Config struct {
	Sessions   *session.Manager
	Verifier   auth.TokenVerifier
	APITokens  *auth.APITokenService
	Authorizer Authorizer
	Limiter    RateLimiter
	Store      store.Store // audit trail
	Metrics    metrics.Metrics
	Logger     *slog.Logger
}

// Manager enforces the shared security model for all channels. Every
// operation passes through it regardless of entry point.
type Manager struct {
	sessions   *session.Manager
	verifier   auth.TokenVerifier
	apiTokens  *auth.APITokenService
	authorizer Authorizer
	limiter    RateLimiter
	store      store.Store
	metrics    metrics.Metrics
	logger     *slog.Logger

	// sessionIndex caches (user, channel) -> session ID so stored API
	// tokens reuse their session across requests. Cache only; sessions
	// themselves live in the store.
	mu           sync.Mutex
	sessionIndex map[string]string
}

// NewManager creates a security manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	authorizer := cfg.Authorizer
	if authorizer == nil {
		authorizer = AllowAll{}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = UnlimitedLimiter{}
	}
	return &Manager{
		sessions:     cfg.Sessions,
		verifier:     cfg.Verifier,
		apiTokens:    cfg.APITokens,
		authorizer:   authorizer,
		limiter:      limiter,
		store:        cfg.Store,
		metrics:      m,
		logger:       logger.With("component", "security"),
		sessionIndex: make(map[string]string),
	}
}

// Authenticate resolves a credential to a session. All credential shapes
// (bearer JWT, stored API token, signed tool header) resolve to the same
// Session type; an empty credential yields an anonymous session.
func (m *Manager) Authenticate(ctx context.Context, credential, channel string) (*store.Session, error) {
	if credential == "" {
		return m.sessions.Anonymous(ctx, channel)
	}

	if strings.HasPrefix(credential, "nexus_") {
		return m.authenticateAPIToken(ctx, credential, channel)
	}

	claims, err := m.verifier.Verify(credential)
	if err != nil {
		return nil, apperr.Authentication("invalid token", err)
	}

	sess, err := m.sessions.Touch(ctx, claims.SessionID, channel)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// authenticateAPIToken verifies a stored token and resolves its session,
// creating one on first contact per (user, channel) pair.
func (m *Manager) authenticateAPIToken(ctx context.Context, credential, channel string) (*store.Session, error) {
	tok, err := m.apiTokens.Verify(ctx, credential)
	if err != nil {
		return nil, apperr.Authentication("invalid api token", err)
	}

	key := tok.UserID + "|" + channel
	m.mu.Lock()
	sessionID, ok := m.sessionIndex[key]
	m.mu.Unlock()

	if ok {
		if sess, err := m.sessions.Touch(ctx, sessionID, channel); err == nil {
			return sess, nil
		}
		// Cached session expired or revoked; fall through and recreate
	}

	userID := tok.UserID
	sess, err := m.sessions.Create(ctx, &userID, tok.TenantID, channel, map[string]any{
		"token_name": tok.Name,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessionIndex[key] = sess.ID
	m.mu.Unlock()
	return sess, nil
}

// Authorize checks whether the identity may perform action on resource.
// Every decision, allow or deny, is appended to the audit trail.
func (m *Manager) Authorize(ctx context.Context, identity *auth.AuthContext, resource, action string) error {
	decision := m.authorizer.Authorize(ctx, identity, resource, action)

	outcome := store.AuditAllow
	if !decision.Allow {
		outcome = store.AuditDeny
	}
	m.audit(ctx, identity, resource, action, outcome, decision.Reason, store.SeverityInfo)

	if !decision.Allow {
		m.metrics.IncAuthDenied("policy")
		return apperr.Authorization(decision.Reason, resource, deref(identity.TenantID))
	}
	return nil
}

// RateLimit checks the request budget for the session on the channel.
func (m *Manager) RateLimit(ctx context.Context, sessionID, channel string) error {
	allowed, retryAfter, err := m.limiter.Allow(ctx, sessionID, channel)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		m.metrics.IncRateLimited(channel)
		return apperr.RateLimit("request budget exceeded", retryAfter)
	}
	return nil
}

// EnforceTenantIsolation requires the resource's tenant to equal the
// session's tenant unless the identity holds the explicit cross-tenant
// grant. A violation is a security incident: logged at elevated severity
// and audited as such, in addition to the authorization error.
func (m *Manager) EnforceTenantIsolation(ctx context.Context, identity *auth.AuthContext, resourceTenant *string, resource string) error {
	if resourceTenant == nil {
		return nil // tenant-less resources are shared
	}
	if identity.TenantID != nil && *identity.TenantID == *resourceTenant {
		return nil
	}
	if identity.HasRole(CrossTenantRole) {
		m.audit(ctx, identity, resource, "cross-tenant", store.AuditAllow, "explicit cross-tenant grant", store.SeverityInfo)
		return nil
	}

	m.logger.Error("tenant isolation violation",
		"session_id", identity.SessionID,
		"session_tenant", deref(identity.TenantID),
		"resource", resource,
		"resource_tenant", *resourceTenant,
		"request_id", identity.RequestID)
	m.metrics.IncAuthDenied("tenant_isolation")
	m.audit(ctx, identity, resource, "execute", store.AuditDeny, "tenant isolation violation", store.SeverityIncident)

	return apperr.Authorization("tenant isolation violation", resource, deref(identity.TenantID))
}

// audit appends a decision record; audit failures are logged, never
// propagated, so a broken audit store cannot turn denials into outages.
func (m *Manager) audit(ctx context.Context, identity *auth.AuthContext, resource, action string, outcome store.AuditOutcome, reason, severity string) {
	d := &store.AuditDecision{
		SessionID: identity.SessionID,
		UserID:    identity.UserID,
		TenantID:  identity.TenantID,
		Resource:  resource,
		Action:    action,
		Outcome:   outcome,
		Reason:    reason,
		Severity:  severity,
		RequestID: identity.RequestID,
	}
	if err := m.store.AppendAuditDecision(ctx, d); err != nil {
		m.logger.Error("audit append failed", "error", err, "resource", resource)
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
