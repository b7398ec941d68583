package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/security"
)

const claimsKey = "dashboardClaims"

// DashboardAuth protects the dashboard query surface with an HS256 bearer
// token. An empty secret disables the check.
func DashboardAuth(secret string, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next() // No secret configured, allow access
			return
		}

		authHeader := c.GetHeader("Authorization")
		token := ""
		if len(authHeader) > 7 && strings.HasPrefix(authHeader, "Bearer ") {
			token = authHeader[7:]
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims, err := security.ValidateJWT(token, secret)
		if err != nil {
			logger.HTTP().Warn("Rejected dashboard token", "path", c.Request.URL.Path, "error", err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// GetDashboardClaims returns the verified claims, if any.
func GetDashboardClaims(c *gin.Context) (*security.DashboardClaims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*security.DashboardClaims)
	return claims, ok
}
