// Package auth provides token verification and identity propagation.
//
// Two credential shapes resolve to the same session identity: HS256 JWTs
// carrying sub and sid claims (issued at login, presented as bearer tokens
// by any channel) and stored API tokens (nexus_<id>_<secret>, bcrypt
// hashed at rest) used by the command channel. AuthContext travels through
// request handling via WithAuth/FromContext on context.Context.
package auth
