// ABOUTME: Command channel adapter mapping command names onto workflows
// ABOUTME: Named options become the inputs map; output renders as text, table or JSON

package command

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/nexus-gateway/internal/apperr"
	"github.com/2389/nexus-gateway/internal/channel"
	"github.com/2389/nexus-gateway/internal/store"
	"github.com/2389/nexus-gateway/internal/workflow"
)

// Name is the channel identifier.
const Name = "command"

// Prefix is the path namespace the adapter claims.
const Prefix = "/cmd/"

// Reserved command names that do not resolve to workflows.
const (
	cmdWorkflows = "workflows"
	cmdRuns      = "runs"
)

// Config holds the adapter's collaborators.
type Config struct {
	Executor *workflow.Executor
	Registry *workflow.Registry
	Logger   *slog.Logger
	SyncWait time.Duration
}

// Adapter serves the command protocol. A command is POSTed to
// /cmd/<name> with its options; any non-reserved name executes the
// workflow of the same name with the options as inputs.
type Adapter struct {
	executor *workflow.Executor
	registry *workflow.Registry
	logger   *slog.Logger
	syncWait time.Duration
}

// New creates the command adapter.
func New(cfg Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SyncWait <= 0 {
		cfg.SyncWait = 30 * time.Second
	}
	return &Adapter{
		executor: cfg.Executor,
		registry: cfg.Registry,
		logger:   logger.With("component", "command"),
		syncWait: cfg.SyncWait,
	}
}

func (a *Adapter) Name() string { return Name }

// Detect claims everything under /cmd/.
func (a *Adapter) Detect(in *channel.Inbound) bool {
	return strings.HasPrefix(in.Path, Prefix)
}

// Capabilities lists the reserved commands plus every workflow.
func (a *Adapter) Capabilities() []channel.Capability {
	caps := []channel.Capability{
		{Name: cmdWorkflows, Description: "List available workflows"},
		{Name: cmdRuns, Description: "Inspect or cancel a run by --id"},
	}
	for _, h := range a.registry.List() {
		caps = append(caps, channel.Capability{
			Name:        h.ID,
			Description: h.Description,
			InputSchema: json.RawMessage(h.InputSchema),
		})
	}
	return caps
}

// Emit is a no-op: the command channel has no live subscribers. Clients
// poll persisted events through the request/response channel instead.
func (a *Adapter) Emit(evt *store.Event) {}

// invocation is the command request body.
type invocation struct {
	Options map[string]any `json:"options"`
	Render  string         `json:"render,omitempty"` // text (default), table, json
	Version int            `json:"version,omitempty"`
	Async   bool           `json:"async,omitempty"`
}

// Handle dispatches one command.
func (a *Adapter) Handle(ctx context.Context, req *channel.Request) *channel.Response {
	in := req.Inbound
	name := strings.TrimPrefix(in.Path, Prefix)
	if idx := strings.Index(name, "?"); idx >= 0 {
		name = name[:idx]
	}
	name = strings.TrimSuffix(name, "/")
	if name == "" || in.Method != http.MethodPost {
		return a.fail(req, "text", apperr.NotFound("command "+name))
	}

	var inv invocation
	if len(in.Body) > 0 {
		if err := json.Unmarshal(in.Body, &inv); err != nil {
			return a.fail(req, "text", apperr.Validation("invalid command body", err))
		}
	}
	render := inv.Render
	if render == "" {
		render = renderText
	}
	if render != renderText && render != renderTable && render != renderJSON {
		return a.fail(req, renderText, apperr.Validation("unknown render mode "+render, nil))
	}

	switch name {
	case cmdWorkflows:
		return a.handleWorkflows(req, render)
	case cmdRuns:
		return a.handleRuns(ctx, req, inv, render)
	default:
		return a.handleExecute(ctx, req, name, inv, render)
	}
}

func (a *Adapter) handleWorkflows(req *channel.Request, render string) *channel.Response {
	rows := make([]map[string]any, 0)
	for _, h := range a.registry.List() {
		rows = append(rows, map[string]any{
			"workflow": h.ID,
			"version":  h.Version,
			"name":     h.Name,
		})
	}
	return a.ok(req, render, map[string]any{"workflows": rows})
}

func (a *Adapter) handleRuns(ctx context.Context, req *channel.Request, inv invocation, render string) *channel.Response {
	id, _ := inv.Options["id"].(string)
	if id == "" {
		return a.fail(req, render, apperr.Validation("--id is required", nil))
	}

	var (
		run *store.Run
		err error
	)
	if cancel, _ := inv.Options["cancel"].(bool); cancel {
		run, err = a.executor.Cancel(ctx, req.Identity, id)
	} else {
		run, err = a.executor.GetRun(ctx, req.Identity, id)
	}
	if err != nil {
		return a.fail(req, render, err)
	}
	return a.ok(req, render, runResult(run))
}

// handleExecute runs the workflow named by the command. Options map 1:1
// onto the inputs map the request/response channel uses.
func (a *Adapter) handleExecute(ctx context.Context, req *channel.Request, name string, inv invocation, render string) *channel.Response {
	wait := a.syncWait
	if inv.Async {
		wait = 0
	}
	run, err := a.executor.Execute(ctx, req.Identity, name, inv.Version, inv.Options, wait)
	if err != nil {
		return a.fail(req, render, err)
	}
	return a.ok(req, render, runResult(run))
}

func runResult(run *store.Run) map[string]any {
	result := map[string]any{
		"run_id":   run.ID,
		"workflow": run.WorkflowID,
		"status":   string(run.Status),
	}
	if run.Result != nil {
		result["result"] = run.Result
	}
	if run.Error != "" {
		result["error"] = run.Error
	}
	return result
}

func (a *Adapter) ok(req *channel.Request, render string, result map[string]any) *channel.Response {
	body, contentType := renderResult(render, result, req.Identity.RequestID)
	return &channel.Response{Status: http.StatusOK, ContentType: contentType, Body: body}
}

func (a *Adapter) fail(req *channel.Request, render string, err error) *channel.Response {
	appErr := apperr.From(err)
	body, contentType := renderError(render, appErr, req.Identity.RequestID)
	return &channel.Response{
		Status:      apperr.HTTPStatus(appErr.Kind),
		ContentType: contentType,
		Body:        body,
	}
}
