package context

import (
	"github.com/gin-gonic/gin"

	"github.com/genstudio/server/internal/auth"
)

// Context key for the authenticated user.
const CtxKeyUser = "auth_user"

// GetUser returns the authenticated user, if any. Generation endpoints
// accept anonymous callers, so absence is not an error.
func GetUser(c *gin.Context) (*auth.User, bool) {
	v, exists := c.Get(CtxKeyUser)
	if !exists {
		return nil, false
	}
	u, ok := v.(*auth.User)
	return u, ok
}

// MustGetUser extracts the authenticated user from the Gin context.
// Panics if not present (should only be called after APIKeyAuth middleware).
func MustGetUser(c *gin.Context) *auth.User {
	u, ok := GetUser(c)
	if !ok {
		panic("MustGetUser called without APIKeyAuth middleware")
	}
	return u
}

// UserID returns the authenticated user's id, or nil for anonymous
// callers. The nil/non-nil split drives quota and ownership decisions.
func UserID(c *gin.Context) *string {
	u, ok := GetUser(c)
	if !ok {
		return nil
	}
	return &u.ID
}
