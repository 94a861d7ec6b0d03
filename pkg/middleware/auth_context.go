package middleware

import "github.com/gin-gonic/gin"

// Context keys set by the auth middleware after token verification.
const (
	UserIDKey      = "user_id"
	AccessTokenKey = "access_token"
)

// SetUserID stores the authenticated user id on the request context.
func SetUserID(c *gin.Context, userID int64) {
	c.Set(UserIDKey, userID)
}

// GetUserID returns the authenticated user id, if any.
func GetUserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
