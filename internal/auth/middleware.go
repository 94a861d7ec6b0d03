package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/movesmart/maas-backend/pkg/common"
	"github.com/movesmart/maas-backend/pkg/middleware"
)

// AccessTokenHeader carries a refreshed token back to the client.
const AccessTokenHeader = "ACCESS-TOKEN"

// Middleware returns the gin handler guarding authenticated routes.
// bypassPrefixes pass through unauthenticated; forwardPrefixes are
// authenticated by a downstream service and also pass through.
func Middleware(service *Service, bypassPrefixes, forwardPrefixes []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if matchesPrefix(path, bypassPrefixes) || matchesPrefix(path, forwardPrefixes) {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" || token == header {
			common.RespondError(c, common.NewTokenRequiredError())
			c.Abort()
			return
		}

		result, err := service.Verify(c.Request.Context(), token)
		if err != nil {
			common.RespondError(c, err)
			c.Abort()
			return
		}

		if result.RefreshedToken != "" {
			c.Header(AccessTokenHeader, result.RefreshedToken)
		}

		middleware.SetUserID(c, result.UserID)
		c.Set(middleware.AccessTokenKey, token)
		c.Next()
	}
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
