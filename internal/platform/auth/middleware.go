package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey         contextKey = "user_id"
	UserRoleKey       contextKey = "user_role"
	ApprovalStatusKey contextKey = "approval_status"
)

// JWTMiddleware authenticates the bearer token and stores the principal in
// the request context. Any failure yields a 401, which clients must treat as
// an unconditional session invalidation.
func JWTMiddleware(issuer *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return unauthorized(c, "missing authorization header")
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return unauthorized(c, "malformed authorization header")
			}

			claims, err := issuer.Parse(parts[1])
			if err != nil {
				return unauthorized(c, "invalid or expired token")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, UserRoleKey, claims.Role)
			ctx = context.WithValue(ctx, ApprovalStatusKey, claims.ApprovalStatus)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	c.Response().Header().Set("WWW-Authenticate", `Bearer realm="carevault"`)
	return echo.NewHTTPError(http.StatusUnauthorized, msg)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(UserRoleKey).(string)
	return role
}

func ApprovalStatusFromContext(ctx context.Context) string {
	status, _ := ctx.Value(ApprovalStatusKey).(string)
	return status
}
