package middlewares

import "github.com/gin-gonic/gin"

const (
	msgUnauthenticated = "Invalid or expired token"
	msgForbidden       = "Not enough permissions"
)

func abortDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
