// Package events provides pattern-based publish/subscribe fan-out.
//
// Subscribers register a type pattern (literal or trailing-wildcard,
// compiled once) and an optional tenant filter. Published events reach
// every matching subscriber exactly once per subscriber in publish order;
// tenant-scoped events never cross tenant filters regardless of pattern.
// Two delivery modes exist: persisted (stored before fan-out, replayable,
// at-least-once) and ephemeral (best-effort push, no retry).
package events
