package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole must run after RequireSession.
func RequireRole(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok {
			redirectToLogin(c)
			return
		}

		if role != required {
			abortWithPage(c, http.StatusForbidden, "forbidden", "You are not allowed to do that.")
			return
		}
		c.Next()
	}
}
