package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/response"
)

// ContextUserKey is the gin context key storing the student's JWT claims.
const ContextUserKey = "currentUser"

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.StudentClaims, error)
}

// JWT protects routes by requiring a valid student access token.
func JWT(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// CurrentStudent returns the claims attached by JWT, or nil.
func CurrentStudent(c *gin.Context) *models.StudentClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.StudentClaims)
	if !ok {
		return nil
	}
	return claims
}
