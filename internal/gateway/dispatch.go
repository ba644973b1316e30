// ABOUTME: Inbound dispatch building the request context for channel adapters
// ABOUTME: Detection, authentication, rate limiting and one boundary log line

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/nexus-gateway/internal/apperr"
	"github.com/2389/nexus-gateway/internal/auth"
	"github.com/2389/nexus-gateway/internal/channel"
	"github.com/2389/nexus-gateway/internal/idgen"
	"github.com/2389/nexus-gateway/internal/store"
)

// maxInboundBody caps request bodies at 4MB across all channels.
const maxInboundBody = 4 << 20

// handleInbound adapts an HTTP request into the transport-neutral
// inbound shape and dispatches it.
func (g *Gateway) handleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBody+1))
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxInboundBody {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	in := &channel.Inbound{
		Method:     r.Method,
		Path:       r.URL.RequestURI(),
		Headers:    r.Header,
		Body:       body,
		Credential: auth.TokenFromRequest(r),
		Remote:     r.RemoteAddr,
	}

	resp := g.Dispatch(r.Context(), in)

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if resp.Stream != nil {
		if err := resp.Stream(r.Context(), w); err != nil {
			g.logger.Debug("stream ended", "error", err, "path", r.URL.Path)
		}
		return
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// Dispatch runs one inbound message through the shared gate sequence:
// detect the channel, resolve the session, rate limit, then hand the
// constructed request context to the adapter. Failures before the
// adapter are logged here, once, with the request ID.
func (g *Gateway) Dispatch(ctx context.Context, in *channel.Inbound) *channel.Response {
	started := time.Now()
	requestID := idgen.MustRequestID()
	ch := g.detector.Detect(in)

	sess, err := g.security.Authenticate(ctx, in.Credential, ch.Name())
	if err != nil {
		return g.reject(in, ch, requestID, started, err)
	}
	if err := g.security.RateLimit(ctx, sess.ID, ch.Name()); err != nil {
		return g.reject(in, ch, requestID, started, err)
	}

	identity := &auth.AuthContext{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		TenantID:  sess.TenantID,
		Channel:   ch.Name(),
		Roles:     sessionRoles(sess),
		RequestID: requestID,
	}
	ctx = auth.WithAuth(ctx, identity)

	resp := ch.Handle(ctx, &channel.Request{
		Inbound:  in,
		Identity: identity,
		Session:  sess,
		Received: started,
	})

	g.metrics.IncRequests(ch.Name(), statusClass(resp.Status))
	g.logger.Info("request",
		"channel", ch.Name(),
		"method", in.Method,
		"path", in.Path,
		"status", resp.Status,
		"session_id", sess.ID,
		"request_id", requestID,
		"duration_ms", time.Since(started).Milliseconds())
	return resp
}

// reject turns a pre-adapter failure into a JSON error response. The
// adapter never ran, so the uniform envelope applies regardless of
// channel.
func (g *Gateway) reject(in *channel.Inbound, ch channel.Channel, requestID string, started time.Time, err error) *channel.Response {
	appErr := apperr.From(err)
	status := apperr.HTTPStatus(appErr.Kind)

	g.metrics.IncRequests(ch.Name(), statusClass(status))
	g.logger.Warn("request rejected",
		"channel", ch.Name(),
		"method", in.Method,
		"path", in.Path,
		"kind", string(appErr.Kind),
		"error", appErr.Message,
		"request_id", requestID,
		"duration_ms", time.Since(started).Milliseconds())

	body, merr := json.Marshal(map[string]any{
		"success": false,
		"data": map[string]string{
			"kind":    string(appErr.Kind),
			"message": appErr.Message,
		},
		"metadata": map[string]any{
			"request_id": requestID,
			"timestamp":  time.Now().UTC(),
		},
	})
	if merr != nil {
		body = []byte(`{"success":false}`)
	}
	resp := &channel.Response{Status: status, ContentType: "application/json", Body: body}
	if appErr.RetryAfter > 0 {
		// Retry-After is delta-seconds per RFC 9110, rounded up so a
		// sub-second wait never advertises zero
		resp.Header = http.Header{}
		resp.Header.Set("Retry-After", strconv.Itoa(int(math.Ceil(appErr.RetryAfter.Seconds()))))
	}
	return resp
}

// sessionRoles reads the roles list from session metadata. Roles are
// assigned at session creation by the deployment's identity layer.
func sessionRoles(sess *store.Session) []string {
	raw, ok := sess.Metadata["roles"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		roles := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	}
	return nil
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
