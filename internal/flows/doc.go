// Package flows contains pure-function orchestrators for the Engine's
// multi-step operations.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, ...) accepts a typed
// dependency struct and returns results without side-effects beyond those
// dependencies. The Engine builds the dependency structs, wrapping every
// store call in its per-call timeout, so flows stay testable with plain
// function literals.
//
// # Architecture boundaries
//
// Flow functions coordinate the credential verifier, token issuer, token
// store, session cache, attempt guard, audit dispatcher and metrics. They do
// NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
