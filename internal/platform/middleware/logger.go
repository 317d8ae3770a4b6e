package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/platform/auth"
)

// Logger emits one structured line per request. Authenticated requests carry
// the acting principal, which is what ties app-log lines back to audit
// entries for the same action.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			// Read the request after the handler ran: the auth middleware
			// swaps in a context carrying the principal.
			req := c.Request()

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}
			if actor := auth.UserIDFromContext(req.Context()); actor != "" {
				evt = evt.Str("actor_id", actor).Str("actor_role", auth.RoleFromContext(req.Context()))
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
