// Package permission implements the role/permission graph with
// time-bounded account grants.
//
// Roles and permissions are independent catalogs joined by edges. An
// account never holds a role or permission directly: it holds grants on
// edges, each optionally expiring. A grant counts toward a decision only
// while it is active, unexpired, and both ends of its edge are active.
//
// # Architecture boundaries
//
// Graph owns validation and policy. Persistence is behind [Store], with
// implementations in store/postgres and store/memory.
package permission
