package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinIdentityKey is the gin.Context key holding the verified *Identity.
const GinIdentityKey = "volcanion.identity"

// GinAuthenticate is Authenticate for gin routers. The identity is stored
// under GinIdentityKey and in the request context.
func (g *Gate) GinAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := g.Verify(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			ginAbort(c, err)
			return
		}
		ginAttach(c, id)
		c.Next()
	}
}

// GinOptionalAuthenticate is OptionalAuthenticate for gin routers.
func (g *Gate) GinOptionalAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := g.Verify(c.Request.Context(), c.GetHeader("Authorization")); err == nil {
			ginAttach(c, id)
		}
		c.Next()
	}
}

func (g *Gate) GinRequireRole(roles ...string) gin.HandlerFunc {
	return g.ginRequire(func(c *gin.Context, id *Identity) error {
		return g.CheckRoles(c.Request.Context(), id, roles...)
	})
}

func (g *Gate) GinRequirePermission(resource, action string) gin.HandlerFunc {
	return g.ginRequire(func(c *gin.Context, id *Identity) error {
		return g.CheckPermission(c.Request.Context(), id, resource, action)
	})
}

func (g *Gate) GinRequirePermissionByName(names ...string) gin.HandlerFunc {
	return g.ginRequire(func(c *gin.Context, id *Identity) error {
		return g.CheckPermissionNames(c.Request.Context(), id, names...)
	})
}

// GinRequireOwnershipOrPermission reads the owner id from the route
// parameter param.
func (g *Gate) GinRequireOwnershipOrPermission(param, resource, action string) gin.HandlerFunc {
	return g.ginRequire(func(c *gin.Context, id *Identity) error {
		return g.CheckOwnership(c.Request.Context(), id, c.Param(param), resource, action)
	})
}

// GinIdentity returns the identity stored by GinAuthenticate.
func GinIdentity(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(GinIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok && id != nil
}

func (g *Gate) ginRequire(check func(*gin.Context, *Identity) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GinIdentity(c)
		if !ok {
			ginAbort(c, ErrUnauthenticated)
			return
		}
		if err := check(c, id); err != nil {
			ginAbort(c, err)
			return
		}
		c.Next()
	}
}

func ginAttach(c *gin.Context, id *Identity) {
	c.Set(GinIdentityKey, id)
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
}

func ginAbort(c *gin.Context, err error) {
	code := StatusCode(err)
	c.AbortWithStatusJSON(code, gin.H{"error": errorCode(code)})
}

func errorCode(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "unavailable"
	}
}
