// Package session manages channel-independent session identity.
//
// A session is created on first authenticated contact per (user, channel)
// pair or explicitly via login, and is resolvable from any channel with
// the same token. Mutation goes through a versioned compare-and-swap so
// concurrent channels touching the same session retry instead of
// overwriting each other. Expired and revoked are terminal states.
package session
