// ABOUTME: Tests for the tool-invocation channel adapter
// ABOUTME: Covers the JSON-RPC envelope, discovery and structured call errors

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/nexus-gateway/internal/auth"
	"github.com/2389/nexus-gateway/internal/channel"
	"github.com/2389/nexus-gateway/internal/config"
	"github.com/2389/nexus-gateway/internal/events"
	"github.com/2389/nexus-gateway/internal/security"
	"github.com/2389/nexus-gateway/internal/session"
	"github.com/2389/nexus-gateway/internal/store"
	"github.com/2389/nexus-gateway/internal/workflow"
)

func strptr(v string) *string { return &v }

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	s := store.NewMockStore()
	sec := security.NewManager(security.Config{
		Sessions: session.NewManager(s, time.Hour, nil),
		Store:    s,
	})
	registry := workflow.NewRegistry()
	registry.Register(&workflow.Handle{
		ID:          "echo",
		Version:     1,
		Name:        "Echo",
		Description: "returns its inputs",
		InputSchema: []byte(`{"type":"object","properties":{"message":{"type":"string"}}}`),
	})
	exec := workflow.NewExecutor(workflow.Config{
		Registry: registry,
		Runtime:  workflow.EchoRuntime{},
		Security: sec,
		Router:   events.NewRouter(s, 8, nil, nil),
		Store:    s,
		Executor: config.ExecutorConfig{MaxConcurrentPerTenant: 4, SyncWaitBudget: time.Second},
	})
	return New(Config{Executor: exec, Registry: registry, SyncWait: time.Second})
}

func rpcCall(t *testing.T, a *Adapter, body string) *channel.Response {
	t.Helper()
	return a.Handle(context.Background(), &channel.Request{
		Inbound: &channel.Inbound{
			Method:  http.MethodPost,
			Path:    Prefix,
			Headers: http.Header{},
			Body:    []byte(body),
		},
		Identity: &auth.AuthContext{
			SessionID: "sess-1",
			UserID:    strptr("alice"),
			TenantID:  strptr("acme"),
			Channel:   Name,
			RequestID: "req-1",
		},
	})
}

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func decode(t *testing.T, resp *channel.Response) rpcReply {
	t.Helper()
	var reply rpcReply
	require.NoError(t, json.Unmarshal(resp.Body, &reply))
	return reply
}

func TestInitialize(t *testing.T) {
	a := newAdapter(t)

	resp := rpcCall(t, a, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.Equal(t, http.StatusOK, resp.Status)

	reply := decode(t, resp)
	require.Nil(t, reply.Error)

	var result map[string]any
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	assert.Equal(t, protocolVersion, result["protocolVersion"])
	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, "nexus-gateway", info["name"])
}

func TestToolsList(t *testing.T) {
	a := newAdapter(t)

	resp := rpcCall(t, a, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	reply := decode(t, resp)
	require.Nil(t, reply.Error)

	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "echo", result.Tools[0].Name)
	assert.Equal(t, "returns its inputs", result.Tools[0].Description)
	assert.Contains(t, string(result.Tools[0].InputSchema), `"message"`)
}

func TestToolsCall(t *testing.T) {
	a := newAdapter(t)

	resp := rpcCall(t, a, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)
	reply := decode(t, resp)
	require.Nil(t, reply.Error)

	var result callResult
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	require.Len(t, result.Content, 1)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, `"message":"hi"`)
}

func TestToolsCall_UnknownToolIsStructuredError(t *testing.T) {
	a := newAdapter(t)

	resp := rpcCall(t, a, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope"}}`)
	reply := decode(t, resp)
	require.Nil(t, reply.Error, "workflow failures are content, not protocol errors")

	var result callResult
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "not_found")
}

func TestToolsCall_MissingName(t *testing.T) {
	a := newAdapter(t)

	resp := rpcCall(t, a, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{}}`)
	reply := decode(t, resp)
	require.NotNil(t, reply.Error)
	assert.Equal(t, codeInvalidParams, reply.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	a := newAdapter(t)

	resp := rpcCall(t, a, `{"jsonrpc":"2.0","id":6,"method":"resources/list"}`)
	reply := decode(t, resp)
	require.NotNil(t, reply.Error)
	assert.Equal(t, codeMethodNotFound, reply.Error.Code)
}

func TestParseError(t *testing.T) {
	a := newAdapter(t)

	resp := rpcCall(t, a, `{not json`)
	reply := decode(t, resp)
	require.NotNil(t, reply.Error)
	assert.Equal(t, codeParseError, reply.Error.Code)
}

func TestInvalidVersion(t *testing.T) {
	a := newAdapter(t)

	resp := rpcCall(t, a, `{"jsonrpc":"1.0","id":7,"method":"initialize"}`)
	reply := decode(t, resp)
	require.NotNil(t, reply.Error)
	assert.Equal(t, codeInvalidRequest, reply.Error.Code)
}

func TestNotificationAccepted(t *testing.T) {
	a := newAdapter(t)

	resp := rpcCall(t, a, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, resp.Status)
	assert.Empty(t, resp.Body)
}

func TestDetect(t *testing.T) {
	a := newAdapter(t)

	assert.True(t, a.Detect(&channel.Inbound{Path: "/rpc"}))
	assert.False(t, a.Detect(&channel.Inbound{Path: "/api/events"}))
}
