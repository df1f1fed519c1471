// Package middleware gates protected operations on a verified access token
// and, optionally, a permission graph decision.
//
// # Gate
//
// [Gate] holds the two capabilities a gate needs: a [TokenVerifier] and a
// [PermissionChecker]. *volcanion.Engine satisfies both, but this package
// never imports it. The core decisions (Verify, CheckRoles,
// CheckPermission, CheckPermissionNames, CheckOwnership) return plain
// errors and are shared by three adapters:
//
//   - net/http: Authenticate, OptionalAuthenticate, RequireRole,
//     RequirePermission, RequirePermissionByName,
//     RequireOwnershipOrPermission
//   - gin: the same set with a Gin prefix
//   - gRPC: UnaryServerInterceptor and StreamServerInterceptor driven by a
//     per-method Rule table
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the TokenVerifier).
//   - Access Redis or the relational store.
//   - Reveal why a token was rejected beyond authentication vs
//     authorization failure.
package middleware
