package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/platform/auth"
	"github.com/carevault/carevault/pkg/pagination"
)

type Handler struct {
	svc     *Service
	devMode bool
}

func NewHandler(svc *Service, devMode bool) *Handler {
	return &Handler{svc: svc, devMode: devMode}
}

// RegisterPublicRoutes mounts the unauthenticated auth surface.
func (h *Handler) RegisterPublicRoutes(e *echo.Group) {
	g := e.Group("/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/forgot-password", h.ForgotPassword)
	g.POST("/verify-otp", h.VerifyOTP)
	g.POST("/reset-password", h.ResetPassword)
}

// RegisterProtectedRoutes mounts routes that require a valid token.
func (h *Handler) RegisterProtectedRoutes(api *echo.Group) {
	g := api.Group("/auth")
	g.POST("/logout", h.Logout)
	g.GET("/profile", h.GetProfile)
	g.PUT("/profile", h.UpdateProfile)
	g.PUT("/change-password", h.ChangePassword)

	admin := api.Group("/admin", auth.RequireRole("admin"))
	admin.GET("/pending-users", h.ListPending)
	admin.POST("/approve-user/:id", h.ApproveUser)
	admin.POST("/reject-user/:id", h.RejectUser)
}

type registerBody struct {
	Name     string                 `json:"name"`
	Email    string                 `json:"email"`
	Password string                 `json:"password"`
	Role     string                 `json:"role"`
	Profile  map[string]interface{} `json:"profile"`
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func (h *Handler) Register(c echo.Context) error {
	var body registerBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Register(c.Request().Context(), body.Name, body.Email, body.Password, body.Role, body.Profile)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c echo.Context) error {
	var body loginBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, u, err := h.svc.Login(c.Request().Context(), body.Email, body.Password)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, User: u})
}

func (h *Handler) Logout(c echo.Context) error {
	if id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
		h.svc.Logout(c.Request().Context(), id)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) GetProfile(c echo.Context) error {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	u, err := h.svc.GetProfile(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type updateProfileBody struct {
	Name    string                 `json:"name"`
	Profile map[string]interface{} `json:"profile"`
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var body updateProfileBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), id, body.Name, body.Profile)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type changePasswordBody struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var body changePasswordBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	if err := h.svc.ChangePassword(c.Request().Context(), id, body.CurrentPassword, body.NewPassword); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password updated"})
}

type emailBody struct {
	Email string `json:"email"`
}

func (h *Handler) ForgotPassword(c echo.Context) error {
	var body emailBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	otp, err := h.svc.ForgotPassword(c.Request().Context(), body.Email)
	if err != nil {
		return mapError(err)
	}
	resp := map[string]string{"message": "if the account exists, a reset code has been sent"}
	// Mail delivery is not wired in development, so the code is surfaced in
	// the response there to keep the flow testable.
	if h.devMode && otp != "" {
		resp["otp"] = otp
	}
	return c.JSON(http.StatusOK, resp)
}

type otpBody struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (h *Handler) VerifyOTP(c echo.Context) error {
	var body otpBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.VerifyOTP(c.Request().Context(), body.Email, body.OTP); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "code verified"})
}

type resetPasswordBody struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var body resetPasswordBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ResetPassword(c.Request().Context(), body.Email, body.OTP, body.NewPassword); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password reset"})
}

func (h *Handler) ListPending(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPending(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type decisionBody struct {
	Notes string `json:"notes"`
}

func (h *Handler) ApproveUser(c echo.Context) error {
	return h.decide(c, h.svc.Approve)
}

func (h *Handler) RejectUser(c echo.Context) error {
	return h.decide(c, h.svc.Reject)
}

func (h *Handler) decide(c echo.Context, fn func(ctx context.Context, adminID, userID uuid.UUID, notes string) (*User, error)) error {
	var body decisionBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	adminID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	u, err := fn(c.Request().Context(), adminID, userID, body.Notes)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidOTP):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrAccountRejected):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrAlreadyDecided):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
