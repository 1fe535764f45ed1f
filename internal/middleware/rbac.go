package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/employee-records-api/internal/models"
	appErrors "github.com/noah-isme/employee-records-api/pkg/errors"
	"github.com/noah-isme/employee-records-api/pkg/response"
)

// RBAC admits requests whose principal holds one of the allowed roles.
func RBAC(allowed ...models.UserRole) gin.HandlerFunc {
	roles := make(map[models.UserRole]struct{}, len(allowed))
	for _, r := range allowed {
		roles[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := roles[models.RoleFor(claims.IsAdmin)]; ok {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireAdmin admits administrators only.
func RequireAdmin() gin.HandlerFunc {
	return RBAC(models.RoleAdmin)
}
