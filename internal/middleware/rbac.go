package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
	"github.com/noah-isme/institute-backoffice-api/pkg/response"
)

// RequireRoles enforces role-based access control for routes.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "this action requires the "+rolesLabel(roles)+" role"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminOnly is shorthand for RequireRoles(models.RoleAdmin).
func AdminOnly() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}

func rolesLabel(roles []models.UserRole) string {
	label := ""
	for i, r := range roles {
		if i > 0 {
			label += " or "
		}
		label += string(r)
	}
	return label
}
