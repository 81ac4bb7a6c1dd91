package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorTemplate is rendered for every error page.
const ErrorTemplate = "error.html"

func abortWithPage(c *gin.Context, status int, code, message string) {
	c.HTML(status, ErrorTemplate, gin.H{
		"Title":     http.StatusText(status),
		"Status":    status,
		"Code":      code,
		"Message":   message,
		"RequestID": RequestIDFromContext(c),
	})
	c.Abort()
}
