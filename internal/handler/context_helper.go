package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/pajalhq/pajal-api/internal/middleware"
	"github.com/pajalhq/pajal-api/internal/models"
)

// claimsFromContext returns the authenticated caller's claims, or nil when
// the route is reachable without the JWT middleware.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	if value, exists := c.Get(middleware.ContextUserKey); exists {
		if claims, ok := value.(*models.JWTClaims); ok {
			return claims
		}
	}
	return nil
}
