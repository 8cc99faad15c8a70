package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/geocoder89/projecthub/internal/actorctx"
	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	jwt TokenVerifier
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

func abortJSON(c *gin.Context, status int, code, message string) {
	reqID, _ := c.Get(CtxRequestID)
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   message,
			"requestId": reqID,
		},
	})
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if raw == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "Missing or invalid access token")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(c.Request.Context(), raw)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired access token")
			return
		}

		c.Set(CtxUserID, claims.UserID())
		c.Set(CtxEmail, claims.Email)
		c.Set(CtxRoles, claims.RealmAccess.Roles)

		// services log the actor from the request context
		c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), claims.UserID()))

		c.Next()
	}
}

// UserIDFromContext returns the caller's provider account id.
func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func RolesFromContext(c *gin.Context) []string {
	v, ok := c.Get(CtxRoles)
	if !ok {
		return nil
	}
	roles, _ := v.([]string)
	return roles
}

func HasRole(c *gin.Context, role string) bool {
	for _, r := range RolesFromContext(c) {
		if r == role {
			return true
		}
	}
	return false
}
