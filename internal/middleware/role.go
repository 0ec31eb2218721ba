package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/listing-market/internal/apperr"
	"github.com/iliyamo/listing-market/internal/model"
)

// RequireRole lets the request through only when the authenticated user
// holds one of roles. It must run after RequireAuth.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return apperr.Unauthorized("")
			}
			if !allowed[u.Role] {
				return apperr.Forbidden("")
			}
			return next(c)
		}
	}
}
