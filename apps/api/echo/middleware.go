package echoapi

import (
	"github.com/labstack/echo/v4"
)

// adminMiddleware only lets through sessions logged in with the admin credential.
func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if getContextSession(ctx).IsAdmin() {
				return next(ctx)
			}
			return errAdminRequired
		}
	}
}

// analystMiddleware requires the token's account to be an active analyst.
func analystMiddleware(auth *tokenAuth) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := auth.contextUser(ctx)
			if err != nil {
				return err
			}
			if !usr.IsAnalyst() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// adminOrAnalystMiddleware accepts an admin session, or else an active analyst token.
func adminOrAnalystMiddleware(auth *tokenAuth) echo.MiddlewareFunc {
	analyst := analystMiddleware(auth)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if getContextSession(ctx).IsAdmin() {
				return next(ctx)
			}
			return analyst(next)(ctx)
		}
	}
}

// skipWhenAdmin lets an admin session through the JWT middleware without a token.
func skipWhenAdmin(ctx echo.Context) bool {
	return getContextSession(ctx).IsAdmin()
}
