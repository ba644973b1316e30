// Package config handles configuration loading for nexus-gateway.
//
// Configuration is loaded from YAML files with environment variable
// expansion. Values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${NEXUS_JWT_SECRET}"
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  ttl: "24h"
//	  sweep_interval: "1m"
//
// Sections: server (http_addr), database (path), auth (jwt_secret,
// token_ttl), sessions (ttl, sweep_interval), rate_limit (requests, window,
// redis_url), executor (max_concurrent_per_tenant, sync_wait_budget, async),
// events (subscriber_buffer, keepalive), logging (level, format) and
// metrics (enabled, path).
package config
