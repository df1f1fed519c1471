// Package volcanion is an authentication and authorization engine backed
// by a relational store and Redis.
//
// # Architecture
//
// An Engine is assembled once through Builder and is safe for concurrent
// use. It coordinates:
//
//   - password: bcrypt / argon2id digests with rehash-on-login
//   - jwt: signed access and refresh tokens with distinct keys
//   - tokenstore: refresh tokens and single-use tokens persisted by digest
//   - session: Redis session entries bound to the token pair via "sid"
//   - internal/limiters: the per (email, origin) login attempt guard
//   - permission: the role/permission graph with time-bounded grants
//
// The middleware package turns Engine decisions into HTTP, gin and gRPC
// gates without importing this package.
//
// # Refresh rotation
//
// Refresh tokens are single use. Rotation revokes the presented token and
// persists its successor in one conditional update, so of several callers
// presenting the same token at most one succeeds. Presenting a token that
// was already rotated is treated as theft: with
// Security.RevokeFamilyOnReuse every refresh token and cached session of
// the account is terminated and ErrRefreshReuse is returned.
//
// # Errors
//
// Every failure maps to a closed Kind through KindOf. Expected outcomes
// such as wrong passwords or denied permissions are returned as sentinel
// errors or false, never panics.
//
// # Timeouts
//
// Each store and cache call made by the Engine runs under
// Config.Store.Timeout on top of the caller's context.
package volcanion
