package record

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/domain/consent"
	"github.com/carevault/carevault/internal/platform/auth"
	"github.com/carevault/carevault/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patientGroup := api.Group("/patient", auth.RequireRole("patient"), auth.RequireApproved())
	patientGroup.GET("/records", h.ListOwnRecords)
	patientGroup.POST("/records", h.UploadOwnRecord)
	patientGroup.GET("/records/:id/download", h.DownloadOwnRecord)

	doctorGroup := api.Group("/doctor", auth.RequireRole("doctor"), auth.RequireApproved())
	doctorGroup.GET("/patients/:patientId/records", h.ListPatientRecords)
	doctorGroup.GET("/patients/:patientId/records/:id", h.ViewRecord)
	doctorGroup.GET("/patients/:patientId/records/:id/download", h.DownloadRecord)

	hospitalGroup := api.Group("/hospital", auth.RequireRole("hospital"), auth.RequireApproved())
	hospitalGroup.GET("/records", h.ListUploadedRecords)
	hospitalGroup.POST("/records", h.UploadForPatient)
}

type uploadBody struct {
	PatientID string                 `json:"patientId"`
	Category  string                 `json:"category"`
	FileType  string                 `json:"fileType"`
	Title     string                 `json:"title"`
	Metadata  map[string]interface{} `json:"metadata"`
}

func (h *Handler) UploadOwnRecord(c echo.Context) error {
	var body uploadBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	rec, err := h.svc.Upload(c.Request().Context(), patientID, patientID,
		body.Category, body.FileType, body.Title, body.Metadata)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) UploadForPatient(c echo.Context) error {
	var body uploadBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	uploaderID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	patientID, err := uuid.Parse(body.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patientId")
	}
	rec, err := h.svc.Upload(c.Request().Context(), patientID, uploaderID,
		body.Category, body.FileType, body.Title, body.Metadata)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListOwnRecords(c echo.Context) error {
	patientID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	f := ListFilter{Category: c.QueryParam("category"), Search: c.QueryParam("search")}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListOwn(c.Request().Context(), patientID, f, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListUploadedRecords(c echo.Context) error {
	uploaderID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	f := ListFilter{Category: c.QueryParam("category"), Search: c.QueryParam("search")}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUploaded(c.Request().Context(), uploaderID, f, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// DownloadOwnRecord serves a patient's own record. No consent gate applies to
// a patient's own data, but the record must belong to the caller.
func (h *Handler) DownloadOwnRecord(c echo.Context) error {
	patientID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	rec, err := h.svc.GetOwn(c.Request().Context(), patientID, recordID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListPatientRecords(c echo.Context) error {
	doctorID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patientId")
	}
	f := ListFilter{Category: c.QueryParam("category"), Search: c.QueryParam("search")}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientRecords(c.Request().Context(), doctorID, patientID, f, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ViewRecord(c echo.Context) error {
	return h.fetch(c, h.svc.View)
}

func (h *Handler) DownloadRecord(c echo.Context) error {
	rec, httpErr := h.gated(c, h.svc.Download)
	if httpErr != nil {
		return httpErr
	}
	// The response carries the storage reference; the file body itself is
	// streamed by the blob tier.
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) fetch(c echo.Context, fn func(ctx context.Context, doctorID, recordID uuid.UUID) (*Record, error)) error {
	rec, httpErr := h.gated(c, fn)
	if httpErr != nil {
		return httpErr
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) gated(c echo.Context, fn func(ctx context.Context, doctorID, recordID uuid.UUID) (*Record, error)) (*Record, error) {
	doctorID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	rec, err := fn(c.Request().Context(), doctorID, recordID)
	if err != nil {
		return nil, mapError(err)
	}
	return rec, nil
}

func mapError(err error) error {
	var denied *DeniedError
	switch {
	case errors.As(err, &denied):
		return echo.NewHTTPError(http.StatusForbidden, map[string]interface{}{
			"message": "access denied",
			"reason":  denied.Decision.Reason,
		})
	case errors.Is(err, ErrValidation), errors.Is(err, consent.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnavailable), errors.Is(err, consent.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
