package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole enforces that the authenticated request carries one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			value, ok := c.Get(ContextKeyUserRole).(string)
			if !ok || value == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "missing role"})
			}
			if _, ok := allowed[value]; !ok {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
			}
			return next(c)
		}
	}
}
