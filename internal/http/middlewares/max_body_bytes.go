package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes caps form posts. A declared Content-Length over the limit is
// refused with a 413 page before any handler runs; a body that only turns
// out too large while streaming makes form parsing fail.
func MaxBodyBytes(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > max {
			abortWithPage(c, http.StatusRequestEntityTooLarge, "body_too_large",
				"The submitted form is too large.")
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)

		c.Next()
	}
}
