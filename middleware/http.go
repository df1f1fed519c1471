package middleware

import (
	"errors"
	"net/http"
)

// Authenticate rejects requests without a valid bearer access token and
// attaches the verified identity to the request context.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.Verify(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// OptionalAuthenticate attaches the identity when a valid token is present
// and otherwise proceeds anonymously.
func (g *Gate) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := g.Verify(r.Context(), r.Header.Get("Authorization")); err == nil {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows requests whose identity holds any of roles. It must
// run after Authenticate.
func (g *Gate) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return g.require(func(r *http.Request, id *Identity) error {
		return g.CheckRoles(r.Context(), id, roles...)
	})
}

// RequirePermission allows requests whose identity may perform action on
// resource.
func (g *Gate) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return g.require(func(r *http.Request, id *Identity) error {
		return g.CheckPermission(r.Context(), id, resource, action)
	})
}

// RequirePermissionByName allows requests whose identity holds any of the
// named permissions.
func (g *Gate) RequirePermissionByName(names ...string) func(http.Handler) http.Handler {
	return g.require(func(r *http.Request, id *Identity) error {
		return g.CheckPermissionNames(r.Context(), id, names...)
	})
}

// RequireOwnershipOrPermission lets an identity through when the path
// value named param equals its account id, and otherwise requires
// (resource, action). Routes must be registered on an http.ServeMux
// pattern that defines param.
func (g *Gate) RequireOwnershipOrPermission(param, resource, action string) func(http.Handler) http.Handler {
	return g.require(func(r *http.Request, id *Identity) error {
		return g.CheckOwnership(r.Context(), id, r.PathValue(param), resource, action)
	})
}

func (g *Gate) require(check func(*http.Request, *Identity) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, ErrUnauthenticated)
				return
			}
			if err := check(r, id); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StatusCode maps a gate error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="volcanion"`)
	}
	http.Error(w, http.StatusText(code), code)
}
