// ABOUTME: Tests for the security manager front door
// ABOUTME: Covers authentication shapes, audited authorization and tenant isolation

package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/nexus-gateway/internal/apperr"
	"github.com/2389/nexus-gateway/internal/auth"
	"github.com/2389/nexus-gateway/internal/session"
	"github.com/2389/nexus-gateway/internal/store"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T, authorizer Authorizer) (*Manager, *store.MockStore, *session.Manager, *auth.JWTVerifier) {
	t.Helper()
	s := store.NewMockStore()
	sessions := session.NewManager(s, time.Hour, nil)
	verifier := auth.NewJWTVerifier(testSecret)
	m := NewManager(Config{
		Sessions:   sessions,
		Verifier:   verifier,
		APITokens:  auth.NewAPITokenService(s),
		Authorizer: authorizer,
		Limiter:    NewWindowLimiter(5, time.Minute),
		Store:      s,
	})
	return m, s, sessions, verifier
}

func strptr(v string) *string { return &v }

func TestAuthenticate_EmptyCredentialIsAnonymous(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)

	sess, err := m.Authenticate(context.Background(), "", "httpapi")
	require.NoError(t, err)
	assert.Nil(t, sess.UserID)
}

func TestAuthenticate_JWTResolvesSameSessionFromAnyChannel(t *testing.T) {
	m, _, sessions, verifier := newTestManager(t, nil)
	ctx := context.Background()

	created, err := sessions.Create(ctx, strptr("alice"), strptr("acme"), "httpapi", nil)
	require.NoError(t, err)

	token, err := verifier.Generate("alice", created.ID, time.Hour)
	require.NoError(t, err)

	viaHTTP, err := m.Authenticate(ctx, token, "httpapi")
	require.NoError(t, err)
	viaCommand, err := m.Authenticate(ctx, token, "command")
	require.NoError(t, err)

	// Cross-channel equivalence: identical identifier, tenant and metadata
	assert.Equal(t, created.ID, viaHTTP.ID)
	assert.Equal(t, created.ID, viaCommand.ID)
	assert.Equal(t, *created.TenantID, *viaCommand.TenantID)
	assert.ElementsMatch(t, []string{"httpapi", "command"}, viaCommand.Channels)
}

func TestAuthenticate_BadJWT(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)

	_, err := m.Authenticate(context.Background(), "garbage", "httpapi")
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestAuthenticate_APITokenReusesSession(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()

	svc := auth.NewAPITokenService(s)
	full, _, err := svc.Issue(ctx, "laptop", "alice", strptr("acme"))
	require.NoError(t, err)

	first, err := m.Authenticate(ctx, full, "command")
	require.NoError(t, err)
	second, err := m.Authenticate(ctx, full, "command")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.TenantID)
	assert.Equal(t, "acme", *second.TenantID)
}

func TestAuthorize_AuditsBothOutcomes(t *testing.T) {
	rbac := NewRBACAuthorizer(map[string]map[string][]string{
		"operator": {"workflow/echo": {"execute"}},
	})
	m, s, _, _ := newTestManager(t, rbac)
	ctx := context.Background()

	identity := &auth.AuthContext{
		SessionID: "sess-1",
		UserID:    strptr("alice"),
		Roles:     []string{"operator"},
		RequestID: "req-1",
	}

	require.NoError(t, m.Authorize(ctx, identity, "workflow/echo", "execute"))

	err := m.Authorize(ctx, identity, "workflow/secret", "execute")
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	decisions, listErr := s.ListAuditDecisions(ctx, store.AuditFilter{})
	require.NoError(t, listErr)
	require.Len(t, decisions, 2)

	outcomes := []store.AuditOutcome{decisions[0].Outcome, decisions[1].Outcome}
	assert.Contains(t, outcomes, store.AuditAllow)
	assert.Contains(t, outcomes, store.AuditDeny)
}

func TestRateLimit_Budget(t *testing.T) {
	s := store.NewMockStore()
	m := NewManager(Config{
		Sessions: session.NewManager(s, time.Hour, nil),
		Verifier: auth.NewJWTVerifier(testSecret),
		Limiter:  NewWindowLimiter(2, time.Minute),
		Store:    s,
	})
	ctx := context.Background()

	require.NoError(t, m.RateLimit(ctx, "sess-1", "httpapi"))
	require.NoError(t, m.RateLimit(ctx, "sess-1", "httpapi"))

	err := m.RateLimit(ctx, "sess-1", "httpapi")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateLimit, apperr.KindOf(err))
	assert.Greater(t, apperr.From(err).RetryAfter, time.Duration(0))
}

func TestTenantIsolation_Violation(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()

	identity := &auth.AuthContext{
		SessionID: "sess-1",
		UserID:    strptr("bob"),
		TenantID:  strptr("globex"),
		RequestID: "req-1",
	}

	err := m.EnforceTenantIsolation(ctx, identity, strptr("acme"), "workflow/w1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	// Exactly one elevated-severity audit record referencing the violation
	incident := store.SeverityIncident
	decisions, listErr := s.ListAuditDecisions(ctx, store.AuditFilter{Severity: &incident})
	require.NoError(t, listErr)
	require.Len(t, decisions, 1)
	assert.Equal(t, "workflow/w1", decisions[0].Resource)
	require.NotNil(t, decisions[0].TenantID)
	assert.Equal(t, "globex", *decisions[0].TenantID)
}

func TestTenantIsolation_SameTenantAllowed(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)

	identity := &auth.AuthContext{SessionID: "sess-1", TenantID: strptr("acme")}
	assert.NoError(t, m.EnforceTenantIsolation(context.Background(), identity, strptr("acme"), "workflow/w1"))
}

func TestTenantIsolation_TenantlessResourceShared(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)

	identity := &auth.AuthContext{SessionID: "sess-1", TenantID: strptr("acme")}
	assert.NoError(t, m.EnforceTenantIsolation(context.Background(), identity, nil, "workflow/echo"))
}

func TestTenantIsolation_CrossTenantGrant(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)

	identity := &auth.AuthContext{
		SessionID: "sess-1",
		TenantID:  strptr("globex"),
		Roles:     []string{CrossTenantRole},
	}
	assert.NoError(t, m.EnforceTenantIsolation(context.Background(), identity, strptr("acme"), "workflow/w1"))
}
