// ABOUTME: Channel abstraction every protocol adapter implements
// ABOUTME: Uniform inbound/request/response types plus deterministic detection

package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/2389/nexus-gateway/internal/auth"
	"github.com/2389/nexus-gateway/internal/store"
)

// HintHeader names the marker header a client may set to steer detection.
// A literal path prefix match always wins over the hint.
const HintHeader = "X-Nexus-Channel"

// Inbound is the transport-neutral shape of a message before channel
// detection. Adapters inspect it without side effects.
type Inbound struct {
	Method     string
	Path       string
	Headers    http.Header
	Body       []byte
	Credential string // bearer or stored token extracted at the edge
	Remote     string
}

// Header returns the named header value, or empty.
func (in *Inbound) Header(name string) string {
	if in.Headers == nil {
		return ""
	}
	return in.Headers.Get(name)
}

// Request is the fully constructed request context handed to an adapter:
// the raw inbound plus the resolved identity and session.
type Request struct {
	Inbound  *Inbound
	Identity *auth.AuthContext
	Session  *store.Session
	Received time.Time
}

// StreamFunc writes a long-lived response (SSE) directly to the client.
// It runs until the stream ends or ctx is done.
type StreamFunc func(ctx context.Context, w http.ResponseWriter) error

// Response is an adapter's protocol-specific reply. Either Body or
// Stream is set, never both.
type Response struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
	Stream      StreamFunc
}

// Capability is one operation a channel exposes, used for discovery on
// the tool-invocation channel.
type Capability struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Channel is a protocol-specific entry point. All adapters share the
// gateway's session, security, event and execution services; they only
// translate between their protocol and the uniform internal call.
type Channel interface {
	Name() string
	// Detect is a cheap, side-effect-free shape test (path prefix).
	Detect(in *Inbound) bool
	Handle(ctx context.Context, req *Request) *Response
	Capabilities() []Capability
	// Emit pushes an event to this channel's live subscribers. Channels
	// without a push surface ignore it.
	Emit(evt *store.Event)
}

// Detector selects the channel for an inbound message in one
// deterministic pass: registration-order prefix scan first, the marker
// header hint second, then the single default channel.
type Detector struct {
	channels []Channel
	fallback Channel
}

// NewDetector creates a detector. fallback handles messages no adapter
// claims; it must also appear in channels if it has its own prefix.
func NewDetector(fallback Channel, channels ...Channel) *Detector {
	return &Detector{channels: channels, fallback: fallback}
}

// Detect returns the channel that owns the message.
func (d *Detector) Detect(in *Inbound) Channel {
	for _, c := range d.channels {
		if c.Detect(in) {
			return c
		}
	}
	if hint := in.Header(HintHeader); hint != "" {
		for _, c := range d.channels {
			if c.Name() == hint {
				return c
			}
		}
	}
	return d.fallback
}

// Channels returns the registered channels in detection order.
func (d *Detector) Channels() []Channel {
	return d.channels
}
