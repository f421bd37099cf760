package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CORS attaches the widget's cross-origin headers to every response,
// including errors, and answers preflight requests itself.
//
// Origin policy: an allow-listed Origin is echoed verbatim; anything else
// (including no Origin at all) gets the first configured origin. The
// permissive fallback is deliberate: the widget is served from known
// frontends and an unknown caller simply cannot read the response
// cross-origin, while the known frontends always can.
func CORS(allowedOrigins []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, resolveOrigin(allowedOrigins, c.Request().Header.Get(echo.HeaderOrigin)))
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			h.Set(echo.HeaderAccessControlAllowMethods, "POST, OPTIONS")
			h.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")

			// Preflight ends here; no business logic runs.
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}

// resolveOrigin requires exact membership; casing variants of a configured
// origin are treated as unknown callers.
func resolveOrigin(allowed []string, origin string) string {
	for _, o := range allowed {
		if o == origin {
			return origin
		}
	}
	return allowed[0]
}
