package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"rustchain-node/logging"
	"rustchain-node/types"
)

func LoggingMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		logging.Info("Received request", types.Server,
			"method", ctx.Request().Method, "path", ctx.Request().URL.Path)
		logging.Debug("Request headers", types.Server, "headers", ctx.Request().Header)
		return next(ctx)
	}
}

// AdminKeyMiddleware gates a route group on the X-Admin-Key header. An empty
// configured key means the admin surface is disabled outright.
func AdminKeyMiddleware(adminKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			presented := ctx.Request().Header.Get("X-Admin-Key")
			if adminKey == "" ||
				subtle.ConstantTimeCompare([]byte(presented), []byte(adminKey)) != 1 {
				logging.Warn("admin request rejected", types.Server,
					"path", ctx.Request().URL.Path)
				return ctx.JSON(http.StatusUnauthorized,
					map[string]any{"ok": false, "error": "unauthorized"})
			}
			return next(ctx)
		}
	}
}
