// ABOUTME: Tests for the workflow executor lifecycle
// ABOUTME: Covers validation, authorization, quotas, async runs and cancel races

package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/nexus-gateway/internal/apperr"
	"github.com/2389/nexus-gateway/internal/auth"
	"github.com/2389/nexus-gateway/internal/config"
	"github.com/2389/nexus-gateway/internal/events"
	"github.com/2389/nexus-gateway/internal/security"
	"github.com/2389/nexus-gateway/internal/session"
	"github.com/2389/nexus-gateway/internal/store"
)

func strptr(v string) *string { return &v }

// fakeRuntime is a controllable runtime: it can block until released,
// return a canned error, and acknowledge or refuse cancellation.
type fakeRuntime struct {
	mu        sync.Mutex
	block     chan struct{} // nil runs complete immediately
	err       error
	cancelAck bool
	cancelled []string
}

func (f *fakeRuntime) Run(ctx context.Context, h *Handle, inputs map[string]any) (map[string]any, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"workflow": h.ID, "inputs": inputs}, nil
}

func (f *fakeRuntime) Cancel(ctx context.Context, runID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, runID)
	return f.cancelAck
}

type fixture struct {
	executor *Executor
	registry *Registry
	runtime  *fakeRuntime
	store    *store.MockStore
	router   *events.Router
}

func newFixture(t *testing.T, authorizer security.Authorizer, maxConcurrent int) *fixture {
	t.Helper()
	s := store.NewMockStore()
	sessions := session.NewManager(s, time.Hour, nil)
	sec := security.NewManager(security.Config{
		Sessions:   sessions,
		Authorizer: authorizer,
		Store:      s,
	})
	router := events.NewRouter(s, 8, nil, nil)
	rt := &fakeRuntime{}
	registry := NewRegistry()
	exec := NewExecutor(Config{
		Registry: registry,
		Runtime:  rt,
		Security: sec,
		Router:   router,
		Store:    s,
		Executor: config.ExecutorConfig{
			MaxConcurrentPerTenant: maxConcurrent,
			SyncWaitBudget:         time.Second,
		},
	})
	return &fixture{executor: exec, registry: registry, runtime: rt, store: s, router: router}
}

func testIdentity(tenant string) *auth.AuthContext {
	identity := &auth.AuthContext{
		SessionID: "sess-1",
		UserID:    strptr("alice"),
		Channel:   "httpapi",
		RequestID: "req-1",
	}
	if tenant != "" {
		identity.TenantID = strptr(tenant)
	}
	return identity
}

func TestExecute_CompletesAndPublishesEvent(t *testing.T) {
	f := newFixture(t, nil, 4)
	f.registry.Register(&Handle{ID: "echo", Version: 1, Name: "Echo"})
	ctx := context.Background()

	run, err := f.executor.Execute(ctx, testIdentity("acme"), "echo", 0, map[string]any{"msg": "hi"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
	assert.Equal(t, "echo", run.Result["workflow"])
	require.NotNil(t, run.EndedAt)

	stored, err := f.store.ListEventsSince(ctx, "", nil, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "workflow.completed", stored[0].Type)
	assert.Equal(t, run.ID, stored[0].Payload["run_id"])
	assert.Equal(t, "acme", *stored[0].TenantID)
}

func TestExecute_RuntimeErrorFailsRun(t *testing.T) {
	f := newFixture(t, nil, 4)
	f.registry.Register(&Handle{ID: "broken", Version: 1})
	f.runtime.err = errors.New("boom")
	ctx := context.Background()

	run, err := f.executor.Execute(ctx, testIdentity(""), "broken", 0, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, run.Status)
	assert.Equal(t, "boom", run.Error)

	stored, err := f.store.ListEventsSince(ctx, "", nil, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "workflow.failed", stored[0].Type)
}

func TestExecute_UnknownWorkflow(t *testing.T) {
	f := newFixture(t, nil, 4)

	_, err := f.executor.Execute(context.Background(), testIdentity(""), "nope", 0, nil, 0)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestExecute_SchemaValidation(t *testing.T) {
	f := newFixture(t, nil, 4)
	f.registry.Register(&Handle{
		ID:      "strict",
		Version: 1,
		InputSchema: []byte(`{
			"type": "object",
			"required": ["name"],
			"properties": {"name": {"type": "string"}}
		}`),
	})
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, testIdentity(""), "strict", 0, map[string]any{"other": 1}, 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// No run record for rejected inputs
	queued, err := f.store.ListRunsByStatus(ctx, store.RunQueued)
	require.NoError(t, err)
	assert.Empty(t, queued)

	run, err := f.executor.Execute(ctx, testIdentity(""), "strict", 0, map[string]any{"name": "ok"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
}

func TestExecute_AuthorizationDenialIsAudited(t *testing.T) {
	authorizer := security.NewRBACAuthorizer(map[string]map[string][]string{
		"operator": {"workflow/other": {"execute"}},
	})
	f := newFixture(t, authorizer, 4)
	f.registry.Register(&Handle{ID: "restricted", Version: 1})
	ctx := context.Background()

	identity := testIdentity("acme")
	identity.Roles = []string{"operator"}

	_, err := f.executor.Execute(ctx, identity, "restricted", 0, nil, 0)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	deny := store.AuditDeny
	decisions, err := f.store.ListAuditDecisions(ctx, store.AuditFilter{Outcome: &deny})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "workflow/restricted", decisions[0].Resource)
}

func TestExecute_TenantIsolation(t *testing.T) {
	f := newFixture(t, nil, 4)
	f.registry.Register(&Handle{ID: "w1", Version: 1, TenantID: strptr("globex")})
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, testIdentity("acme"), "w1", 0, nil, 0)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	incident := store.SeverityIncident
	decisions, err := f.store.ListAuditDecisions(ctx, store.AuditFilter{Severity: &incident})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
}

func TestExecute_VersionResolution(t *testing.T) {
	f := newFixture(t, nil, 4)
	f.registry.Register(&Handle{ID: "multi", Version: 1})
	f.registry.Register(&Handle{ID: "multi", Version: 3})
	f.registry.Register(&Handle{ID: "multi", Version: 2})
	ctx := context.Background()

	latest, err := f.executor.Execute(ctx, testIdentity(""), "multi", 0, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.WorkflowVersion)

	pinned, err := f.executor.Execute(ctx, testIdentity(""), "multi", 2, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, pinned.WorkflowVersion)

	_, err = f.executor.Execute(ctx, testIdentity(""), "multi", 9, nil, 0)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestExecute_QuotaRejectsPerTenant(t *testing.T) {
	f := newFixture(t, nil, 1)
	f.registry.Register(&Handle{ID: "slow", Version: 1})
	f.runtime.block = make(chan struct{})
	ctx := context.Background()

	first, err := f.executor.Execute(ctx, testIdentity("acme"), "slow", 0, nil, 0)
	require.NoError(t, err)

	_, err = f.executor.Execute(ctx, testIdentity("acme"), "slow", 0, nil, 0)
	assert.Equal(t, apperr.KindRateLimit, apperr.KindOf(err))

	// Other tenants have their own budget
	other, err := f.executor.Execute(ctx, testIdentity("globex"), "slow", 0, nil, 0)
	require.NoError(t, err)

	close(f.runtime.block)
	f.executor.Wait(ctx, first.ID)
	f.executor.Wait(ctx, other.ID)

	// Slot freed after completion
	again, err := f.executor.Execute(ctx, testIdentity("acme"), "slow", 0, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, again.Status)
}

func TestExecute_AsyncReturnsBeforeTerminal(t *testing.T) {
	f := newFixture(t, nil, 4)
	f.registry.Register(&Handle{ID: "slow", Version: 1})
	f.runtime.block = make(chan struct{})
	ctx := context.Background()
	identity := testIdentity("acme")

	run, err := f.executor.Execute(ctx, identity, "slow", 0, nil, 0)
	require.NoError(t, err)
	assert.False(t, run.Status.Terminal())

	close(f.runtime.block)
	f.executor.Wait(ctx, run.ID)

	final, err := f.executor.GetRun(ctx, identity, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, final.Status)
}

func TestCancel_AcknowledgedRunBecomesCancelled(t *testing.T) {
	f := newFixture(t, nil, 4)
	f.registry.Register(&Handle{ID: "slow", Version: 1})
	f.runtime.block = make(chan struct{})
	f.runtime.cancelAck = true
	ctx := context.Background()
	identity := testIdentity("acme")

	run, err := f.executor.Execute(ctx, identity, "slow", 0, nil, 0)
	require.NoError(t, err)

	cancelled, err := f.executor.Cancel(ctx, identity, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCancelled, cancelled.Status)
	assert.Equal(t, []string{run.ID}, f.runtime.cancelled)

	// The run goroutine observing the cancelled context must not
	// overwrite the terminal state
	f.executor.Wait(ctx, run.ID)
	final, err := f.executor.GetRun(ctx, identity, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCancelled, final.Status)
}

func TestCancel_CompletedRunKeepsItsState(t *testing.T) {
	f := newFixture(t, nil, 4)
	f.registry.Register(&Handle{ID: "echo", Version: 1})
	f.runtime.cancelAck = true
	ctx := context.Background()
	identity := testIdentity("acme")

	run, err := f.executor.Execute(ctx, identity, "echo", 0, nil, time.Second)
	require.NoError(t, err)
	require.Equal(t, store.RunCompleted, run.Status)

	after, err := f.executor.Cancel(ctx, identity, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, after.Status)
	assert.Empty(t, f.runtime.cancelled, "terminal runs never reach the runtime")
}

func TestCancel_UnacknowledgedLeavesRunAlone(t *testing.T) {
	f := newFixture(t, nil, 4)
	f.registry.Register(&Handle{ID: "slow", Version: 1})
	f.runtime.block = make(chan struct{})
	ctx := context.Background()
	identity := testIdentity("acme")

	run, err := f.executor.Execute(ctx, identity, "slow", 0, nil, 0)
	require.NoError(t, err)

	_, err = f.executor.Cancel(ctx, identity, run.ID)
	assert.Equal(t, apperr.KindExecution, apperr.KindOf(err))

	close(f.runtime.block)
	f.executor.Wait(ctx, run.ID)
	final, err := f.executor.GetRun(ctx, identity, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, final.Status)
}

func TestGetRun_TenantScoped(t *testing.T) {
	f := newFixture(t, nil, 4)
	f.registry.Register(&Handle{ID: "echo", Version: 1})
	ctx := context.Background()

	run, err := f.executor.Execute(ctx, testIdentity("acme"), "echo", 0, nil, time.Second)
	require.NoError(t, err)

	_, err = f.executor.GetRun(ctx, testIdentity("globex"), run.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	got, err := f.executor.GetRun(ctx, testIdentity("acme"), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}

func TestFailOrphans(t *testing.T) {
	f := newFixture(t, nil, 4)
	ctx := context.Background()

	for i, status := range []store.RunStatus{store.RunRunning, store.RunQueued, store.RunCompleted} {
		require.NoError(t, f.store.CreateRun(ctx, &store.Run{
			ID:         "run-orphan" + string(rune('0'+i)),
			WorkflowID: "w",
			SessionID:  "sess-1",
			Status:     status,
			StartedAt:  time.Now().UTC(),
		}))
	}

	count, err := f.executor.FailOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	failed, err := f.store.ListRunsByStatus(ctx, store.RunFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 2)
	completed, err := f.store.ListRunsByStatus(ctx, store.RunCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 1)
}
