package mid

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKey authenticates the trigger endpoint with a shared key carried in the
// x-api-key header (or an "ApiKey" authorization scheme).
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.Request.Header.Get("x-api-key")
		if got == "" {
			authz := c.Request.Header.Get("authorization")
			if after, ok := strings.CutPrefix(authz, "ApiKey "); ok {
				got = after
			}
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
			c.Abort()
			return
		}

		c.Next()
	}
}
