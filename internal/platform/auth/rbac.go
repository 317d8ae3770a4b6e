package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. Admin passes every role gate.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if role == "admin" {
				return next(c)
			}
			for _, required := range roles {
				if role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireApproved blocks any principal whose account has not been approved by
// an admin. A pending session may only reach the awaiting-approval surface.
func RequireApproved() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			status := ApprovalStatusFromContext(c.Request().Context())
			switch status {
			case "approved":
				return next(c)
			case "pending":
				return echo.NewHTTPError(http.StatusForbidden, "account is awaiting admin approval")
			default:
				return echo.NewHTTPError(http.StatusForbidden, "account is not approved")
			}
		}
	}
}
