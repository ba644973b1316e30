// ABOUTME: Request/response channel adapter with the JSON envelope
// ABOUTME: Workflow execution, run polling, login and the SSE event stream

package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/nexus-gateway/internal/apperr"
	"github.com/2389/nexus-gateway/internal/channel"
	"github.com/2389/nexus-gateway/internal/dedupe"
	"github.com/2389/nexus-gateway/internal/events"
	"github.com/2389/nexus-gateway/internal/session"
	"github.com/2389/nexus-gateway/internal/store"
	"github.com/2389/nexus-gateway/internal/workflow"

	"github.com/2389/nexus-gateway/internal/auth"
)

// Name is the channel identifier. httpapi is also the default channel
// when no adapter claims an inbound message.
const Name = "httpapi"

// Config holds the adapter's collaborators.
type Config struct {
	Executor  *workflow.Executor
	Registry  *workflow.Registry
	Router    *events.Router
	Sessions  *session.Manager
	Verifier  *auth.JWTVerifier
	Logger    *slog.Logger
	SyncWait  time.Duration // budget before execute falls back to the run ID
	TokenTTL  time.Duration
	KeepAlive time.Duration // SSE keepalive interval
}

// Adapter serves the request/response protocol under /api/.
type Adapter struct {
	executor  *workflow.Executor
	registry  *workflow.Registry
	router    *events.Router
	sessions  *session.Manager
	verifier  *auth.JWTVerifier
	logger    *slog.Logger
	syncWait  time.Duration
	tokenTTL  time.Duration
	keepAlive time.Duration
}

// New creates the httpapi adapter.
func New(cfg Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SyncWait <= 0 {
		cfg.SyncWait = 30 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
	return &Adapter{
		executor:  cfg.Executor,
		registry:  cfg.Registry,
		router:    cfg.Router,
		sessions:  cfg.Sessions,
		verifier:  cfg.Verifier,
		logger:    logger.With("component", "httpapi"),
		syncWait:  cfg.SyncWait,
		tokenTTL:  cfg.TokenTTL,
		keepAlive: cfg.KeepAlive,
	}
}

func (a *Adapter) Name() string { return Name }

// Detect claims everything under /api/.
func (a *Adapter) Detect(in *channel.Inbound) bool {
	return strings.HasPrefix(in.Path, "/api/")
}

// Capabilities lists the latest version of every registered workflow.
func (a *Adapter) Capabilities() []channel.Capability {
	handles := a.registry.List()
	caps := make([]channel.Capability, len(handles))
	for i, h := range handles {
		caps[i] = channel.Capability{
			Name:        h.ID,
			Description: h.Description,
			InputSchema: json.RawMessage(h.InputSchema),
		}
	}
	return caps
}

// Emit pushes an event to live SSE subscribers, best effort.
func (a *Adapter) Emit(evt *store.Event) {
	if err := a.router.Publish(context.Background(), evt, events.ModeEphemeral); err != nil {
		a.logger.Debug("emit failed", "error", err, "type", evt.Type)
	}
}

// metadata is the envelope trailer on every response.
type metadata struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// envelope is the uniform response shape of the request/response channel.
type envelope struct {
	Success  bool     `json:"success"`
	Data     any      `json:"data"`
	Metadata metadata `json:"metadata"`
}

// errorData is the envelope payload for failures. No stack traces, no
// storage errors; the request ID correlates back to the audit trail.
type errorData struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	RetryAfter string `json:"retry_after,omitempty"`
}

// Handle routes within /api/. Inbound paths may carry a query string;
// routing only looks at the path portion.
func (a *Adapter) Handle(ctx context.Context, req *channel.Request) *channel.Response {
	in := req.Inbound
	path := in.Path
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	path = strings.TrimSuffix(path, "/")

	switch {
	case in.Method == http.MethodPost && path == "/api/login":
		return a.handleLogin(ctx, req)
	case in.Method == http.MethodGet && path == "/api/workflows":
		return a.handleListWorkflows(req)
	case in.Method == http.MethodPost && strings.HasPrefix(path, "/api/workflows/") && strings.HasSuffix(path, "/execute"):
		name := strings.TrimSuffix(strings.TrimPrefix(path, "/api/workflows/"), "/execute")
		return a.handleExecute(ctx, req, name)
	case in.Method == http.MethodGet && strings.HasPrefix(path, "/api/runs/"):
		return a.handleGetRun(ctx, req, strings.TrimPrefix(path, "/api/runs/"))
	case in.Method == http.MethodDelete && strings.HasPrefix(path, "/api/runs/"):
		return a.handleCancelRun(ctx, req, strings.TrimPrefix(path, "/api/runs/"))
	case in.Method == http.MethodGet && path == "/api/events":
		return a.handleEvents(req)
	}

	return a.fail(req, apperr.NotFound(in.Method+" "+in.Path))
}

type loginRequest struct {
	UserID   string  `json:"user_id"`
	TenantID *string `json:"tenant_id,omitempty"`
}

// handleLogin creates a session for the named user and returns a JWT
// bound to it. Identity verification is delegated to the deployment's
// edge; the gateway binds tokens to sessions.
func (a *Adapter) handleLogin(ctx context.Context, req *channel.Request) *channel.Response {
	var body loginRequest
	if err := json.Unmarshal(req.Inbound.Body, &body); err != nil {
		return a.fail(req, apperr.Validation("invalid login body", err))
	}
	if body.UserID == "" {
		return a.fail(req, apperr.Validation("user_id is required", nil))
	}

	sess, err := a.sessions.Create(ctx, &body.UserID, body.TenantID, Name, nil)
	if err != nil {
		return a.fail(req, err)
	}
	token, err := a.verifier.Generate(body.UserID, sess.ID, a.tokenTTL)
	if err != nil {
		return a.fail(req, apperr.Internal("issuing token", err))
	}

	return a.respond(req, http.StatusOK, map[string]any{
		"token":      token,
		"session_id": sess.ID,
		"expires_at": time.Now().UTC().Add(a.tokenTTL),
	})
}

func (a *Adapter) handleListWorkflows(req *channel.Request) *channel.Response {
	return a.respond(req, http.StatusOK, map[string]any{"workflows": a.Capabilities()})
}

type executeRequest struct {
	Inputs  map[string]any `json:"inputs"`
	Version int            `json:"version,omitempty"`
	// Async skips the sync wait and returns the run ID immediately.
	Async bool `json:"async,omitempty"`
}

func (a *Adapter) handleExecute(ctx context.Context, req *channel.Request, name string) *channel.Response {
	var body executeRequest
	if len(req.Inbound.Body) > 0 {
		if err := json.Unmarshal(req.Inbound.Body, &body); err != nil {
			return a.fail(req, apperr.Validation("invalid execute body", err))
		}
	}

	wait := a.syncWait
	if body.Async {
		wait = 0
	}
	run, err := a.executor.Execute(ctx, req.Identity, name, body.Version, body.Inputs, wait)
	if err != nil {
		return a.fail(req, err)
	}

	status := http.StatusOK
	if !run.Status.Terminal() {
		// Budget elapsed; caller polls /api/runs/{id}
		status = http.StatusAccepted
	}
	return a.respond(req, status, runPayload(run))
}

func (a *Adapter) handleGetRun(ctx context.Context, req *channel.Request, runID string) *channel.Response {
	run, err := a.executor.GetRun(ctx, req.Identity, runID)
	if err != nil {
		return a.fail(req, err)
	}
	return a.respond(req, http.StatusOK, runPayload(run))
}

func (a *Adapter) handleCancelRun(ctx context.Context, req *channel.Request, runID string) *channel.Response {
	run, err := a.executor.Cancel(ctx, req.Identity, runID)
	if err != nil {
		return a.fail(req, err)
	}
	return a.respond(req, http.StatusOK, runPayload(run))
}

// handleEvents opens the SSE stream: persisted backfill from ?since=,
// then the live tail. Event IDs dedupe the overlap between the two.
func (a *Adapter) handleEvents(req *channel.Request) *channel.Response {
	query := parseQuery(req.Inbound.Path)
	pattern := query["pattern"]
	if pattern == "" {
		pattern = "*"
	}
	since := query["since"]

	compiled, err := events.CompilePattern(pattern)
	if err != nil {
		return a.fail(req, apperr.Validation("invalid pattern", err))
	}

	tenant := req.Identity.TenantID
	identity := req.Identity

	stream := func(ctx context.Context, w http.ResponseWriter) error {
		flusher, ok := w.(http.Flusher)
		if !ok {
			return fmt.Errorf("streaming not supported")
		}

		sub, err := a.router.SubscribeContext(ctx, Name, pattern, tenant)
		if err != nil {
			return err
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		seen := dedupe.New(time.Minute, 1024)
		defer seen.Close()

		if since != "" {
			backfill, err := a.router.Replay(ctx, since, tenant, 0)
			if err != nil {
				a.logger.Warn("event replay failed", "error", err, "since", since)
			}
			for _, evt := range backfill {
				if !compiled.Matches(evt.Type) {
					continue
				}
				seen.Mark(evt.ID)
				if err := writeSSE(w, evt); err != nil {
					return err
				}
			}
			flusher.Flush()
		}

		keepalive := time.NewTicker(a.keepAlive)
		defer keepalive.Stop()

		a.logger.Debug("sse stream opened",
			"session_id", identity.SessionID,
			"pattern", pattern,
			"request_id", identity.RequestID)

		for {
			select {
			case <-ctx.Done():
				return nil
			case evt, ok := <-sub.C:
				if !ok {
					return nil
				}
				if seen.CheckAndMark(evt.ID) {
					continue // already sent during backfill
				}
				if err := writeSSE(w, evt); err != nil {
					return err
				}
				flusher.Flush()
			case <-keepalive.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return err
				}
				flusher.Flush()
			}
		}
	}

	return &channel.Response{Status: http.StatusOK, Stream: stream}
}

// writeSSE emits one event with its ID so clients can resume via ?since=.
func writeSSE(w http.ResponseWriter, evt *store.Event) error {
	payload, err := json.Marshal(map[string]any{
		"id":        evt.ID,
		"type":      evt.Type,
		"payload":   evt.Payload,
		"timestamp": evt.Timestamp,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Type, payload)
	return err
}

func runPayload(run *store.Run) map[string]any {
	payload := map[string]any{
		"run_id":      run.ID,
		"workflow_id": run.WorkflowID,
		"version":     run.WorkflowVersion,
		"status":      run.Status,
		"started_at":  run.StartedAt,
	}
	if run.Result != nil {
		payload["result"] = run.Result
	}
	if run.Error != "" {
		payload["error"] = run.Error
	}
	if run.EndedAt != nil {
		payload["ended_at"] = run.EndedAt
	}
	return payload
}

func (a *Adapter) respond(req *channel.Request, status int, data any) *channel.Response {
	body, err := json.Marshal(envelope{
		Success:  status < 400,
		Data:     data,
		Metadata: metadata{RequestID: req.Identity.RequestID, Timestamp: time.Now().UTC()},
	})
	if err != nil {
		a.logger.Error("encoding response", "error", err)
		return &channel.Response{Status: http.StatusInternalServerError, ContentType: "application/json", Body: []byte(`{"success":false}`)}
	}
	return &channel.Response{Status: status, ContentType: "application/json", Body: body}
}

func (a *Adapter) fail(req *channel.Request, err error) *channel.Response {
	appErr := apperr.From(err)
	data := errorData{Kind: string(appErr.Kind), Message: appErr.Message}
	if appErr.RetryAfter > 0 {
		data.RetryAfter = appErr.RetryAfter.String()
	}
	return a.respond(req, apperr.HTTPStatus(appErr.Kind), data)
}

// parseQuery extracts querystring parameters from the raw path. Inbound
// paths keep the query because detection only looks at the prefix.
// Values are percent-decoded; undecodable pairs are skipped.
func parseQuery(path string) map[string]string {
	out := make(map[string]string)
	idx := strings.Index(path, "?")
	if idx < 0 {
		return out
	}
	// ParseQuery keeps the pairs it could decode and skips the rest
	values, _ := url.ParseQuery(path[idx+1:])
	for key := range values {
		out[key] = values.Get(key)
	}
	return out
}
