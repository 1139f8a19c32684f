// Package middleware provides authentication and request-validation
// middleware for the Gin web framework.
package middleware

import (
	"context"
	"net/http"

	"ieltsprep/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session keys for storing user information
const (
	// UserIDKey is the key used to store user ID in session
	UserIDKey = "user_id"
	// UsernameKey is the key used to store username in session
	UsernameKey = "username"
	// APIKeyHeader carries a service key for non-browser clients
	APIKeyHeader = "X-API-Key"
)

// APIKeyValidator checks a raw service key and returns its record.
type APIKeyValidator interface {
	ValidateAPIKey(ctx context.Context, rawKey string) (*models.AuthAPIKey, error)
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": "Authentication required",
		"code":  "UNAUTHORIZED",
	})
	c.Abort()
}

// RequireAuth returns a middleware that requires either a logged-in session
// or a valid X-API-Key header. apiKeys may be nil to disable header auth.
func RequireAuth(apiKeys APIKeyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, username, ok := sessionUser(c); ok {
			c.Set(UserIDKey, userID)
			c.Set(UsernameKey, username)
			c.Next()
			return
		}

		if rawKey := c.GetHeader(APIKeyHeader); rawKey != "" && apiKeys != nil {
			key, err := apiKeys.ValidateAPIKey(c.Request.Context(), rawKey)
			if err == nil {
				c.Set(UserIDKey, key.UserID)
				c.Set(UsernameKey, key.KeyName)
				c.Next()
				return
			}
		}

		unauthorized(c)
	}
}

// sessionUser extracts and validates identity from the session cookie.
func sessionUser(c *gin.Context) (int, string, bool) {
	session := sessions.Default(c)

	userID := session.Get(UserIDKey)
	if userID == nil {
		return 0, "", false
	}
	userIDInt, ok := userID.(int)
	if !ok {
		// JSON numbers deserialize as float64 in some session stores
		userIDFloat, ok := userID.(float64)
		if !ok {
			return 0, "", false
		}
		userIDInt = int(userIDFloat)
	}

	username, ok := session.Get(UsernameKey).(string)
	if !ok || username == "" {
		return 0, "", false
	}
	return userIDInt, username, true
}

// GetUserID returns the authenticated user id set by RequireAuth.
func GetUserID(c *gin.Context) (int, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}
