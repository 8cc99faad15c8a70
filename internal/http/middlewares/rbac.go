package middlewares

import (
	"context"
	"net/http"

	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

func (m *AuthMiddleware) RequireRole(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserIDFromContext(c); !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "Missing identity context")
			return
		}
		if !HasRole(c, required) {
			abortJSON(c, http.StatusForbidden, "forbidden", required+" role required")
			return
		}
		c.Next()
	}
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// RequireSelfOrRole lets through holders of role, and otherwise only the user
// whose local id is in the path parameter.
func (m *AuthMiddleware) RequireSelfOrRole(role, param string, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, ok := UserIDFromContext(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "Missing identity context")
			return
		}
		if HasRole(c, role) {
			c.Next()
			return
		}

		u, err := users.GetByID(c.Request.Context(), c.Param(param))
		if err != nil || u.ExternalID != callerID {
			abortJSON(c, http.StatusForbidden, "forbidden", "Only the user or an administrator may do this")
			return
		}
		c.Next()
	}
}
