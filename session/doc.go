// Package session provides the Redis-backed session cache: short-lived,
// opaque per-session payloads keyed by account and session id.
//
// # Architecture boundaries
//
// The cache does not interpret payloads, JWTs or permissions. Expiry is
// delegated entirely to Redis key TTLs, so a session that outlives its TTL
// is gone without any sweeper.
package session
