package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireJSON rejects bodies that are not JSON. Requests without a body pass.
func RequireJSON() gin.HandlerFunc {
	return requireContentType("application/json", "Content-Type must be application/json")
}

func RequireMultipart() gin.HandlerFunc {
	return requireContentType("multipart/form-data", "Content-Type must be multipart/form-data")
}

func requireContentType(prefix, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength == 0 {
				break
			}
			ct := c.GetHeader("Content-Type")
			// allow "application/json; charset=utf-8"
			if ct == "" || !strings.HasPrefix(strings.ToLower(ct), prefix) {
				abortJSON(c, http.StatusUnsupportedMediaType, "unsupported_media_type", message)
				return
			}
		}
		c.Next()
	}
}
