// Package store provides the persistence boundary for nexus-gateway.
//
// The Store interface owns all durable state: sessions, execution runs,
// persisted events, the append-only audit trail, and stored API tokens.
// The orchestration core never talks to a database directly; a Store is
// injected at construction time. Two implementations ship with the
// gateway: SQLiteStore for deployments and MockStore for tests.
//
// Session updates go through a versioned compare-and-swap: writers that
// observe a stale version get ErrVersionConflict and retry against a
// fresh read instead of overwriting concurrent channel activity.
package store
