// ABOUTME: Executor driving workflow runs through their lifecycle
// ABOUTME: Validation, authorization, tenant quota, runtime call, terminal events

package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/nexus-gateway/internal/apperr"
	"github.com/2389/nexus-gateway/internal/auth"
	"github.com/2389/nexus-gateway/internal/config"
	"github.com/2389/nexus-gateway/internal/events"
	"github.com/2389/nexus-gateway/internal/idgen"
	"github.com/2389/nexus-gateway/internal/metrics"
	"github.com/2389/nexus-gateway/internal/security"
	"github.com/2389/nexus-gateway/internal/store"
)

// errAlreadyTerminal marks a rejected transition on a finished run.
// Transitions are monotonic; whichever terminal state lands first stays.
var errAlreadyTerminal = errors.New("run already terminal")

// Executor owns the run lifecycle. Every execution passes the same gate
// sequence regardless of which channel asked for it: resolve, validate,
// authorize, tenant isolation, concurrency quota, then the runtime call.
type Executor struct {
	registry  *Registry
	runtime   Runtime
	validator *Validator
	security  *security.Manager
	router    *events.Router
	store     store.Store
	metrics   metrics.Metrics
	logger    *slog.Logger
	cfg       config.ExecutorConfig

	mu     sync.Mutex
	quotas map[string]chan struct{} // tenant key -> semaphore
	active map[string]*activeRun
}

// activeRun is the per-run single writer: all status transitions for a
// live run serialize on its mutex.
type activeRun struct {
	mu     sync.Mutex
	done   chan struct{}
	cancel context.CancelFunc
}

// Config holds the executor's collaborators.
type Config struct {
	Registry *Registry
	Runtime  Runtime
	Security *security.Manager
	Router   *events.Router
	Store    store.Store
	Metrics  metrics.Metrics
	Logger   *slog.Logger
	Executor config.ExecutorConfig
}

// NewExecutor creates an executor.
func NewExecutor(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	if cfg.Executor.MaxConcurrentPerTenant < 1 {
		cfg.Executor.MaxConcurrentPerTenant = 1
	}
	return &Executor{
		registry:  cfg.Registry,
		runtime:   cfg.Runtime,
		validator: NewValidator(),
		security:  cfg.Security,
		router:    cfg.Router,
		store:     cfg.Store,
		metrics:   m,
		logger:    logger.With("component", "executor"),
		cfg:       cfg.Executor,
		quotas:    make(map[string]chan struct{}),
		active:    make(map[string]*activeRun),
	}
}

// Execute starts a run of the named workflow. The run always executes on
// a detached context so it outlives the request; wait bounds how long the
// caller blocks for a terminal state before getting the queued/running
// snapshot back. wait <= 0 returns immediately after the run is recorded.
func (e *Executor) Execute(ctx context.Context, identity *auth.AuthContext, workflowID string, version int, inputs map[string]any, wait time.Duration) (*store.Run, error) {
	h, err := e.registry.Resolve(workflowID, version)
	if err != nil {
		return nil, err
	}

	if err := e.validator.Validate(h, inputs); err != nil {
		return nil, err
	}
	if err := e.security.Authorize(ctx, identity, h.Resource(), h.Permission()); err != nil {
		return nil, err
	}
	if err := e.security.EnforceTenantIsolation(ctx, identity, h.TenantID, h.Resource()); err != nil {
		return nil, err
	}

	release, err := e.acquireQuota(identity.TenantID)
	if err != nil {
		return nil, err
	}

	runID, err := idgen.NewRunID()
	if err != nil {
		release()
		return nil, apperr.Internal("generating run id", err)
	}

	run := &store.Run{
		ID:              runID,
		WorkflowID:      h.ID,
		WorkflowVersion: h.Version,
		SessionID:       identity.SessionID,
		TenantID:        identity.TenantID,
		Inputs:          inputs,
		Status:          store.RunQueued,
		StartedAt:       time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		release()
		return nil, apperr.Internal("recording run", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ar := &activeRun{done: make(chan struct{}), cancel: cancel}
	e.mu.Lock()
	e.active[runID] = ar
	e.mu.Unlock()

	go e.run(runCtx, ar, h, run, release)

	if wait > 0 {
		select {
		case <-ar.done:
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}

	latest, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return run, nil
	}
	return latest, nil
}

// run drives one execution to a terminal state. It is the only goroutine
// that moves the run forward; Cancel competes with it only through the
// per-run mutex.
func (e *Executor) run(ctx context.Context, ar *activeRun, h *Handle, run *store.Run, release func()) {
	defer func() {
		release()
		e.mu.Lock()
		delete(e.active, run.ID)
		e.mu.Unlock()
		close(ar.done)
	}()

	if _, err := e.transition(ctx, ar, run.ID, store.RunRunning, nil); err != nil {
		// Cancelled before it started
		return
	}

	result, runErr := e.runtime.Run(ctx, h, run.Inputs)

	if runErr != nil {
		final, err := e.transition(context.Background(), ar, run.ID, store.RunFailed, func(r *store.Run) {
			r.Error = runErr.Error()
		})
		if err == nil {
			e.metrics.IncRunsCompleted(final.WorkflowID, string(store.RunFailed))
			e.publishTerminal(final, "workflow.failed", map[string]any{
				"run_id":      final.ID,
				"workflow_id": final.WorkflowID,
				"error":       final.Error,
			})
		}
		return
	}

	final, err := e.transition(context.Background(), ar, run.ID, store.RunCompleted, func(r *store.Run) {
		r.Result = result
	})
	if err != nil {
		// Lost the race against a cancel; the cancelled state stands
		return
	}
	e.metrics.IncRunsCompleted(final.WorkflowID, string(store.RunCompleted))
	e.publishTerminal(final, "workflow.completed", map[string]any{
		"run_id":      final.ID,
		"workflow_id": final.WorkflowID,
		"result":      final.Result,
	})
}

// Cancel asks the runtime to stop a run. The run moves to cancelled only
// when the runtime acknowledges; a run that reached a terminal state
// first keeps that state and Cancel reports it unchanged.
func (e *Executor) Cancel(ctx context.Context, identity *auth.AuthContext, runID string) (*store.Run, error) {
	run, err := e.getAuthorized(ctx, identity, runID, "cancel")
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}

	e.mu.Lock()
	ar := e.active[runID]
	e.mu.Unlock()

	ack := e.runtime.Cancel(ctx, runID)
	if !ack {
		latest, gerr := e.store.GetRun(ctx, runID)
		if gerr == nil && latest.Status.Terminal() {
			return latest, nil
		}
		return run, apperr.Execution("runtime did not acknowledge cancellation", nil)
	}

	if ar == nil {
		// Run finished between the lookup and the ack
		latest, gerr := e.store.GetRun(ctx, runID)
		if gerr != nil {
			return nil, apperr.Internal("reading run", gerr)
		}
		return latest, nil
	}

	ar.cancel()
	final, terr := e.transition(ctx, ar, runID, store.RunCancelled, nil)
	if terr != nil {
		if errors.Is(terr, errAlreadyTerminal) {
			// Completed or failed first; monotonicity keeps that state
			return final, nil
		}
		return nil, apperr.Internal("cancelling run", terr)
	}
	e.metrics.IncRunsCompleted(final.WorkflowID, string(store.RunCancelled))
	e.publishTerminal(final, "workflow.cancelled", map[string]any{
		"run_id":      final.ID,
		"workflow_id": final.WorkflowID,
	})
	return final, nil
}

// GetRun returns a run the identity is allowed to see.
func (e *Executor) GetRun(ctx context.Context, identity *auth.AuthContext, runID string) (*store.Run, error) {
	return e.getAuthorized(ctx, identity, runID, "read")
}

// Wait blocks until the run reaches a terminal state or ctx ends. Runs
// unknown to the executor (already terminal, or from before a restart)
// return immediately.
func (e *Executor) Wait(ctx context.Context, runID string) {
	e.mu.Lock()
	ar := e.active[runID]
	e.mu.Unlock()
	if ar == nil {
		return
	}
	select {
	case <-ar.done:
	case <-ctx.Done():
	}
}

// FailOrphans marks every queued or running run as failed. Called once
// at startup: anything non-terminal in the store was interrupted by the
// previous process dying.
func (e *Executor) FailOrphans(ctx context.Context) (int, error) {
	count := 0
	for _, status := range []store.RunStatus{store.RunRunning, store.RunQueued} {
		runs, err := e.store.ListRunsByStatus(ctx, status)
		if err != nil {
			return count, err
		}
		for _, run := range runs {
			now := time.Now().UTC()
			run.Status = store.RunFailed
			run.Error = "interrupted by gateway restart"
			run.EndedAt = &now
			if err := e.store.UpdateRun(ctx, run); err != nil {
				return count, err
			}
			count++
		}
	}
	if count > 0 {
		e.logger.Warn("failed orphaned runs from previous process", "count", count)
	}
	return count, nil
}

func (e *Executor) getAuthorized(ctx context.Context, identity *auth.AuthContext, runID, action string) (*store.Run, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("run " + runID)
		}
		return nil, apperr.Internal("reading run", err)
	}
	if err := e.security.EnforceTenantIsolation(ctx, identity, run.TenantID, "run/"+runID); err != nil {
		return nil, err
	}
	if err := e.security.Authorize(ctx, identity, "run/"+runID, action); err != nil {
		return nil, err
	}
	return run, nil
}

// transition moves a run to the given status under the per-run writer
// lock. Terminal runs reject further transitions and the current record
// is returned alongside errAlreadyTerminal.
func (e *Executor) transition(ctx context.Context, ar *activeRun, runID string, to store.RunStatus, mutate func(*store.Run)) (*store.Run, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, errAlreadyTerminal
	}

	run.Status = to
	if mutate != nil {
		mutate(run)
	}
	if to.Terminal() {
		now := time.Now().UTC()
		run.EndedAt = &now
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// acquireQuota takes a slot from the tenant's concurrency semaphore.
// Exhausted quotas reject immediately rather than queue; backpressure
// belongs to the caller.
func (e *Executor) acquireQuota(tenantID *string) (func(), error) {
	key := ""
	if tenantID != nil {
		key = *tenantID
	}

	e.mu.Lock()
	sem, ok := e.quotas[key]
	if !ok {
		sem = make(chan struct{}, e.cfg.MaxConcurrentPerTenant)
		e.quotas[key] = sem
	}
	e.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	default:
		e.metrics.IncRateLimited("executor")
		return nil, apperr.RateLimit("tenant concurrency quota exhausted", 0)
	}
}

// publishTerminal emits the persisted lifecycle event for a finished run.
// Publish failures are logged, never propagated; the run state in the
// store is the source of truth.
func (e *Executor) publishTerminal(run *store.Run, eventType string, payload map[string]any) {
	eventID, err := idgen.NewEventID()
	if err != nil {
		e.logger.Error("generating event id", "error", err)
		return
	}
	evt := &store.Event{
		ID:        eventID,
		Type:      eventType,
		Channel:   "executor",
		SessionID: run.SessionID,
		TenantID:  run.TenantID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if err := e.router.Publish(context.Background(), evt, events.ModePersisted); err != nil {
		e.logger.Error("publishing run event", "error", err, "run_id", run.ID, "type", eventType)
	}
}
