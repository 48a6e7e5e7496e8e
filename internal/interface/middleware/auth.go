package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/senecalabs/seneca-accounts/pkg/helpers"
	"github.com/senecalabs/seneca-accounts/pkg/response"
)

// Auth validates the Authorization bearer token and sets accountID and
// accountEmail in the Gin context on success.
func Auth(jwt *helpers.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error[any](c, http.StatusUnauthorized, "missing bearer token", nil)
			c.Abort()
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Error[any](c, http.StatusUnauthorized, "malformed authorization header", nil)
			c.Abort()
			return
		}
		claims, err := jwt.Verify(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, helpers.ErrTokenExpired) {
				msg = "token expired"
			}
			response.Error[any](c, http.StatusUnauthorized, msg, nil)
			c.Abort()
			return
		}
		c.Set("accountID", claims.AccountID)
		c.Set("accountEmail", claims.Email)
		c.Next()
	}
}
