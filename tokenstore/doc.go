// Package tokenstore persists refresh tokens and single-use tokens by
// SHA-256 digest and implements single-winner refresh rotation on top of a
// Repository (see store/postgres and store/memory).
package tokenstore
