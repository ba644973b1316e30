// Package security enforces the shared security model for all channels.
//
// The Manager composes four concerns behind one front door: credential
// authentication (bearer JWTs and stored API tokens both resolve to the
// same session), pluggable authorization strategies with an append-only
// audit trail covering every allow and deny, sliding-window rate limiting
// keyed by (session, channel) with in-memory and Redis backends, and
// tenant isolation where violations are treated as security incidents.
package security
