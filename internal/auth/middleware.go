package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// contextKey is the gin context key the caller identity is stored under.
const contextKey = "beacon.auth"

// Middleware returns a gin middleware that requires a valid bearer token and
// installs the decoded Context for downstream handlers. In dev mode a request
// with no credentials at all is admitted as an anonymous administrator.
func Middleware(v *Verifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if v.devMode {
				c.Set(contextKey, Context{Username: "anonymous", IsAdmin: true})
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "missing bearer token",
			})
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == header || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "malformed Authorization header",
			})
			return
		}

		authCtx, err := v.Verify(tokenStr)
		if err != nil {
			logger.Debug("token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "invalid bearer token",
			})
			return
		}

		c.Set(contextKey, authCtx)
		c.Next()
	}
}

// FromGin retrieves the caller identity installed by Middleware.
func FromGin(c *gin.Context) (Context, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return Context{}, false
	}
	authCtx, ok := v.(Context)
	return authCtx, ok
}

// SetForTest installs an identity directly, for handler tests that bypass
// the middleware.
func SetForTest(c *gin.Context, authCtx Context) {
	c.Set(contextKey, authCtx)
}
