package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/pajalhq/pajal-api/internal/models"
	appErrors "github.com/pajalhq/pajal-api/pkg/errors"
	"github.com/pajalhq/pajal-api/pkg/response"
)

// SelfAccess is the pseudo-role granting a user access to routes whose
// :id parameter is their own user id.
const SelfAccess = "SELF"

// RBAC enforces role-based access control for routes. Roles are flat, not
// hierarchical: an administrator is not implicitly a lecturer. The
// allow-list is parsed once, not per request.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, a := range allowed {
		if a == SelfAccess {
			allowSelf = true
			continue
		}
		allowedRoles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := currentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if !roleAllowed(claims, allowedRoles, allowSelf, c.Param("id")) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

func currentClaims(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func roleAllowed(claims *models.JWTClaims, roles map[models.UserRole]struct{}, allowSelf bool, targetID string) bool {
	if _, ok := roles[claims.Role]; ok {
		return true
	}
	return allowSelf && targetID != "" && targetID == claims.UserID
}
