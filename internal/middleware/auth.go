package middleware

import (
	"net/http"
	"strings"

	"github.com/ZAPHODh/ws-guess-server/internal/services"

	"github.com/gin-gonic/gin"
)

// AccountIDKey is the gin context key holding the authenticated account id.
const AccountIDKey = "account_id"

type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

func JWTAuth(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		accountID, err := auth.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": services.MessageOf(err)})
			return
		}

		c.Set(AccountIDKey, accountID)
		c.Next()
	}
}

// OptionalAuth sets the account id when a valid bearer token or "token"
// query parameter is present and lets anonymous requests through. Browsers
// cannot set headers on websocket upgrades, hence the query parameter.
func OptionalAuth(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			token = c.Query("token")
		}
		if token != "" {
			accountID, err := auth.ValidateToken(token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": services.MessageOf(err)})
				return
			}
			c.Set(AccountIDKey, accountID)
		}
		c.Next()
	}
}
