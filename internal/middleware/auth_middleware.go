package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "timekeeper/backend/internal/errors"
	"timekeeper/backend/internal/service"
)

const (
	UserIDContextKey = "userID"
	RoleContextKey   = "role"
)

// BearerToken extracts the credential from an Authorization header value.
// It returns an empty string when the header is missing or malformed.
func BearerToken(header string) string {
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func Auth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			writeError(c, apperrors.Unauthorized("missing or malformed authorization header"))
			return
		}

		identity, apiErr := authService.Verify(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		c.Set(UserIDContextKey, identity.UserID)
		c.Set(RoleContextKey, identity.Role)
		c.Next()
	}
}

func UserID(c *gin.Context) string {
	value, ok := c.Get(UserIDContextKey)
	if !ok {
		return ""
	}
	userID, ok := value.(string)
	if !ok {
		return ""
	}
	return userID
}

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"error": gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"details": apiErr.Details,
		},
	})
}
