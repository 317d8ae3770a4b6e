package audit

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/platform/auth"
	"github.com/carevault/carevault/pkg/pagination"
)

type Handler struct {
	rec *Recorder
}

func NewHandler(rec *Recorder) *Handler {
	return &Handler{rec: rec}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	adminGroup := api.Group("/admin", auth.RequireRole("admin"))
	adminGroup.GET("/audit", h.SearchAudit)
	adminGroup.GET("/audit/verify", h.VerifyChain)
}

func (h *Handler) SearchAudit(c echo.Context) error {
	var f Filter

	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		f.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		f.To = &t
	}
	f.Action = Action(c.QueryParam("action"))
	f.Severity = Severity(c.QueryParam("severity"))
	f.Status = Status(c.QueryParam("status"))
	if v := c.QueryParam("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
		}
		f.ActorID = &id
	}

	pg := pagination.FromContext(c)
	items, total, err := h.rec.Search(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "audit store unavailable")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) VerifyChain(c echo.Context) error {
	if err := h.rec.VerifyChain(c.Request().Context()); err != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"valid":  false,
			"detail": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"valid": true})
}
