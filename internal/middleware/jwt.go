package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	authpkg "github.com/octobees/leadgen/internal/auth"
)

// TokenParser verifies bearer tokens.
type TokenParser interface {
	ParseToken(token string) (*authpkg.Claims, error)
}

// JWT validates bearer tokens and stores the caller's subject, organisation
// and role in the request context.
func JWT(parser TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing authorization header"})
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid authorization header"})
			}

			claims, err := parser.ParseToken(strings.TrimSpace(parts[1]))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			}

			c.Set(ContextKeySubject, claims.Subject)
			c.Set(ContextKeyOrgID, claims.OrgID)
			c.Set(ContextKeyUserRole, claims.Role)

			return next(c)
		}
	}
}
