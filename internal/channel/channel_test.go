// ABOUTME: Tests for channel detection precedence
// ABOUTME: Prefix match beats header hint beats the default channel

package channel

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/nexus-gateway/internal/store"
)

// stubChannel matches a fixed path prefix.
type stubChannel struct {
	name   string
	prefix string
}

func (s *stubChannel) Name() string                                       { return s.name }
func (s *stubChannel) Detect(in *Inbound) bool                            { return strings.HasPrefix(in.Path, s.prefix) }
func (s *stubChannel) Handle(ctx context.Context, req *Request) *Response { return &Response{} }
func (s *stubChannel) Capabilities() []Capability                         { return nil }
func (s *stubChannel) Emit(evt *store.Event)                              {}

func newTestDetector() (*Detector, *stubChannel, *stubChannel, *stubChannel) {
	api := &stubChannel{name: "httpapi", prefix: "/api/"}
	cmd := &stubChannel{name: "command", prefix: "/cmd/"}
	rpc := &stubChannel{name: "tools", prefix: "/rpc"}
	return NewDetector(api, api, cmd, rpc), api, cmd, rpc
}

func inbound(path string, headers map[string]string) *Inbound {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &Inbound{Method: http.MethodPost, Path: path, Headers: h}
}

func TestDetect_PrefixMatch(t *testing.T) {
	d, api, cmd, rpc := newTestDetector()

	assert.Same(t, api, d.Detect(inbound("/api/workflows", nil)))
	assert.Same(t, cmd, d.Detect(inbound("/cmd/echo", nil)))
	assert.Same(t, rpc, d.Detect(inbound("/rpc", nil)))
}

func TestDetect_PrefixBeatsHeaderHint(t *testing.T) {
	d, _, cmd, _ := newTestDetector()

	// The hint asks for tools but the path prefix owns the message
	got := d.Detect(inbound("/cmd/echo", map[string]string{HintHeader: "tools"}))
	assert.Same(t, cmd, got)
}

func TestDetect_HeaderHintWhenNoPrefixClaims(t *testing.T) {
	d, _, _, rpc := newTestDetector()

	got := d.Detect(inbound("/other", map[string]string{HintHeader: "tools"}))
	assert.Same(t, rpc, got)
}

func TestDetect_UnknownHintFallsBack(t *testing.T) {
	d, api, _, _ := newTestDetector()

	got := d.Detect(inbound("/other", map[string]string{HintHeader: "matrix"}))
	assert.Same(t, api, got)
}

func TestDetect_DefaultChannel(t *testing.T) {
	d, api, _, _ := newTestDetector()

	assert.Same(t, api, d.Detect(inbound("/unclaimed", nil)))
}
