// ABOUTME: Tool-invocation channel speaking JSON-RPC 2.0
// ABOUTME: initialize handshake, tools/list discovery and tools/call execution

package tools

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
const Name = "tools"

// Prefix is the JSON-RPC endpoint path.
const Prefix = "/rpc"

// protocolVersion advertised in initialize responses.
const protocolVersion = "2025-03-26"

// maxBodySize caps request bodies at 1MB.
const maxBodySize = 1 << 20

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// rpcRequest is a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// callParams are the params for tools/call.
type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// callResult is the result for tools/call. Errors from the workflow are
// structured content with isError, not protocol errors.
type callResult struct {
	Content []content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

type content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Config holds the adapter's collaborators.
type Config struct {
	Executor *workflow.Executor
	Registry *workflow.Registry
	Logger   *slog.Logger
	SyncWait time.Duration
}

// Adapter serves the tool-invocation protocol. Discovery derives tool
// definitions from workflow handles; invocation executes the workflow
// synchronously within the wait budget.
type Adapter struct {
	executor *workflow.Executor
	registry *workflow.Registry
	logger   *slog.Logger
	syncWait time.Duration
}

// New creates the tools adapter.
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
		logger:   logger.With("component", "tools"),
		syncWait: cfg.SyncWait,
	}
}

func (a *Adapter) Name() string { return Name }

// Detect claims the /rpc endpoint.
func (a *Adapter) Detect(in *channel.Inbound) bool {
	return in.Path == Prefix || strings.HasPrefix(in.Path, Prefix+"/") || strings.HasPrefix(in.Path, Prefix+"?")
}

// Capabilities derives one tool definition per workflow handle.
func (a *Adapter) Capabilities() []channel.Capability {
	handles := a.registry.List()
	caps := make([]channel.Capability, len(handles))
	for i, h := range handles {
		schema := h.InputSchema
		if len(schema) == 0 {
			schema = []byte(`{"type":"object"}`)
		}
		caps[i] = channel.Capability{
			Name:        h.ID,
			Description: h.Description,
			InputSchema: json.RawMessage(schema),
		}
	}
	return caps
}

// Emit is a no-op: the protocol has no server-initiated stream.
func (a *Adapter) Emit(evt *store.Event) {}

// Handle processes one JSON-RPC message.
func (a *Adapter) Handle(ctx context.Context, req *channel.Request) *channel.Response {
	in := req.Inbound
	if in.Method != http.MethodPost {
		return &channel.Response{
			Status:      http.StatusMethodNotAllowed,
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte("Method Not Allowed\n"),
		}
	}
	if len(in.Body) > maxBodySize {
		return a.rpcFail(nil, codeInvalidRequest, "request body too large")
	}

	var rpc rpcRequest
	if err := json.Unmarshal(in.Body, &rpc); err != nil {
		return a.rpcFail(nil, codeParseError, "invalid JSON")
	}
	if rpc.JSONRPC != "2.0" {
		return a.rpcFail(rpc.ID, codeInvalidRequest, "invalid JSON-RPC version")
	}

	// Notifications are accepted with no body
	if len(rpc.ID) == 0 || string(rpc.ID) == "null" {
		if !strings.HasPrefix(rpc.Method, "notifications/") {
			a.logger.Warn("notification for non-notification method", "method", rpc.Method)
		}
		return &channel.Response{Status: http.StatusAccepted}
	}

	switch rpc.Method {
	case "initialize":
		return a.handleInitialize(rpc)
	case "tools/list":
		return a.handleToolsList(rpc)
	case "tools/call":
		return a.handleToolsCall(ctx, req, rpc)
	default:
		return a.rpcFail(rpc.ID, codeMethodNotFound, "method not found")
	}
}

func (a *Adapter) handleInitialize(rpc rpcRequest) *channel.Response {
	return a.rpcOK(rpc.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "nexus-gateway",
			"version": "1.0.0",
		},
	})
}

func (a *Adapter) handleToolsList(rpc rpcRequest) *channel.Response {
	return a.rpcOK(rpc.ID, map[string]any{"tools": a.Capabilities()})
}

// handleToolsCall executes the named workflow. Workflow failures and
// denials come back as isError content so tool callers can read them;
// only malformed requests become protocol errors.
func (a *Adapter) handleToolsCall(ctx context.Context, req *channel.Request, rpc rpcRequest) *channel.Response {
	var params callParams
	if err := json.Unmarshal(rpc.Params, &params); err != nil {
		return a.rpcFail(rpc.ID, codeInvalidParams, "invalid tools/call params")
	}
	if params.Name == "" {
		return a.rpcFail(rpc.ID, codeInvalidParams, "tool name is required")
	}

	run, err := a.executor.Execute(ctx, req.Identity, params.Name, 0, params.Arguments, a.syncWait)
	if err != nil {
		appErr := apperr.From(err)
		return a.rpcOK(rpc.ID, callResult{
			Content: []content{{Type: "text", Text: string(appErr.Kind) + ": " + appErr.Message}},
			IsError: true,
		})
	}

	switch run.Status {
	case store.RunCompleted:
		text, merr := json.Marshal(run.Result)
		if merr != nil {
			return a.rpcFail(rpc.ID, codeInternalError, "encoding result")
		}
		return a.rpcOK(rpc.ID, callResult{Content: []content{{Type: "text", Text: string(text)}}})
	case store.RunFailed:
		return a.rpcOK(rpc.ID, callResult{
			Content: []content{{Type: "text", Text: "execution failed: " + run.Error}},
			IsError: true,
		})
	case store.RunCancelled:
		return a.rpcOK(rpc.ID, callResult{
			Content: []content{{Type: "text", Text: "run cancelled"}},
			IsError: true,
		})
	default:
		// Wait budget elapsed; hand back the run ID for polling
		text, merr := json.Marshal(map[string]string{"run_id": run.ID, "status": string(run.Status)})
		if merr != nil {
			return a.rpcFail(rpc.ID, codeInternalError, "encoding result")
		}
		return a.rpcOK(rpc.ID, callResult{Content: []content{{Type: "text", Text: string(text)}}})
	}
}

func (a *Adapter) rpcOK(id json.RawMessage, result any) *channel.Response {
	return a.write(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (a *Adapter) rpcFail(id json.RawMessage, code int, message string) *channel.Response {
	return a.write(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (a *Adapter) write(resp rpcResponse) *channel.Response {
	body, err := json.Marshal(resp)
	if err != nil {
		a.logger.Error("encoding json-rpc response", "error", err)
		return &channel.Response{Status: http.StatusInternalServerError}
	}
	// JSON-RPC errors still ride HTTP 200; transport and protocol status
	// are independent layers
	return &channel.Response{Status: http.StatusOK, ContentType: "application/json", Body: body}
}
