package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core/user"
)

// adminMiddleware only lets admins through. When roles are given, the admin must also hold one of them.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// studentMiddleware rejects tokens that do not carry the student role.
func studentMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if contextHasAnyRole(ctx, []string{user.RoleStudent}) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
