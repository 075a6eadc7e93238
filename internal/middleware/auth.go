// internal/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/javajoker/idea-market/internal/i18n"
	"github.com/javajoker/idea-market/internal/utils"

	"github.com/gin-gonic/gin"
)

// AuthRequired accepts bearer tokens issued by the account service and puts
// the caller's user id in the context.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.AbortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", i18n.T(lang, i18n.KeyAuthRequired))
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.AbortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", i18n.T(lang, i18n.KeyAuthInvalidToken))
			return
		}

		claims, err := utils.ValidateJWT(parts[1])
		if err != nil {
			utils.AbortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", i18n.T(lang, i18n.KeyAuthTokenExpired))
			return
		}

		c.Set("user_id", claims.UserID)
		c.Next()
	}
}
