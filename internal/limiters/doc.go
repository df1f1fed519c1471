// Package limiters provides the Redis-backed counters that guard login and
// notification endpoints.
//
// # Limiters
//
//   - [AttemptGuard]: failed login counter per (email, origin) with a
//     sliding lockout window.
//   - [RequestLimiter]: fixed-window throttle for password reset and email
//     verification requests.
//
// Both are nil-safe: methods on a nil receiver allow the operation.
//
// # What this package must NOT do
//
//   - Import the root package or any flow package.
//   - Make policy decisions beyond counting; flows decide consequences.
package limiters
