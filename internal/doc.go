// Package internal contains helpers private to volcanion-auth: random
// identifiers and token digests.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators behind every Engine operation
//   - limiters: Redis-backed login attempt guard and request throttles
//   - ids: monotonic ULID row identifiers
//   - httpapi: JSON HTTP surface used by cmd/volcanion-authd
package internal
