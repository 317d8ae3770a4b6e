package consent

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/platform/auth"
	"github.com/carevault/carevault/pkg/pagination"
)

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patientGroup := api.Group("/patient", auth.RequireRole("patient"), auth.RequireApproved())
	patientGroup.GET("/consents", h.ListPatientConsents)
	patientGroup.POST("/grant-consent", h.GrantConsent)
	patientGroup.POST("/revoke-consent", h.RevokeConsent)

	doctorGroup := api.Group("/doctor", auth.RequireRole("doctor"), auth.RequireApproved())
	doctorGroup.GET("/consents", h.ListDoctorConsents)
	doctorGroup.GET("/patients", h.ListDoctorPatients)
	doctorGroup.POST("/request-access", h.RequestAccess)
}

type permissionsBody struct {
	CanView     bool `json:"canView"`
	CanDownload bool `json:"canDownload"`
	CanUpdate   bool `json:"canUpdate"`
	CanShare    bool `json:"canShare"`
}

type requestAccessBody struct {
	PatientID         string          `json:"patientId"`
	ConsentType       string          `json:"consentType"`
	ValidUntil        string          `json:"validUntil"`
	Permissions       permissionsBody `json:"permissions"`
	AllowedCategories []string        `json:"allowedCategories"`
	RequestMessage    string          `json:"requestMessage"`
}

type grantConsentBody struct {
	DoctorID          string          `json:"doctorId"`
	ConsentID         string          `json:"consentId"`
	ConsentType       string          `json:"consentType"`
	Permissions       permissionsBody `json:"permissions"`
	AllowedCategories []string        `json:"allowedCategories"`
	ValidUntil        string          `json:"validUntil"`
	ResponseMessage   string          `json:"responseMessage"`
}

type revokeConsentBody struct {
	DoctorID        string `json:"doctorId"`
	ConsentID       string `json:"consentId"`
	ResponseMessage string `json:"responseMessage"`
}

func (h *Handler) RequestAccess(c echo.Context) error {
	var body requestAccessBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := uuid.Parse(body.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patientId")
	}
	doctorID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	validUntil, err := parseValidUntil(body.ValidUntil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid validUntil")
	}

	consent, err := h.registry.RequestAccess(c.Request().Context(),
		doctorID, patientID, Type(body.ConsentType), validUntil,
		toPermissions(body.Permissions), body.AllowedCategories, body.RequestMessage)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, consent)
}

func (h *Handler) GrantConsent(c echo.Context) error {
	var body grantConsentBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	validUntil, err := parseValidUntil(body.ValidUntil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid validUntil")
	}

	ctx := c.Request().Context()
	perms := toPermissions(body.Permissions)

	// Granting an identified pending request and proactively granting to a
	// doctor are the same surface; the body carries one of the two ids.
	if body.ConsentID != "" {
		consentID, err := uuid.Parse(body.ConsentID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid consentId")
		}
		consent, err := h.registry.Grant(ctx, patientID, consentID,
			perms, validUntil, body.AllowedCategories, body.ResponseMessage)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(http.StatusOK, consent)
	}

	doctorID, err := uuid.Parse(body.DoctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctorId")
	}
	consent, err := h.registry.GrantToDoctor(ctx, patientID, doctorID,
		Type(body.ConsentType), perms, validUntil, body.AllowedCategories, body.ResponseMessage)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, consent)
}

func (h *Handler) RevokeConsent(c echo.Context) error {
	var body revokeConsentBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}

	ctx := c.Request().Context()
	if body.ConsentID != "" {
		consentID, err := uuid.Parse(body.ConsentID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid consentId")
		}
		consent, err := h.registry.Revoke(ctx, patientID, consentID, body.ResponseMessage)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(http.StatusOK, consent)
	}

	doctorID, err := uuid.Parse(body.DoctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctorId")
	}
	consent, err := h.registry.RevokeForDoctor(ctx, patientID, doctorID, body.ResponseMessage)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, consent)
}

func (h *Handler) ListPatientConsents(c echo.Context) error {
	patientID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	f := ListFilter{
		Status: Status(c.QueryParam("status")),
		Search: c.QueryParam("search"),
	}
	pg := pagination.FromContext(c)
	items, total, err := h.registry.ListForPatient(c.Request().Context(), patientID, f, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListDoctorConsents(c echo.Context) error {
	doctorID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	f := ListFilter{
		Status: Status(c.QueryParam("status")),
		Search: c.QueryParam("search"),
	}
	pg := pagination.FromContext(c)
	items, total, err := h.registry.ListForDoctor(c.Request().Context(), doctorID, f, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// ListDoctorPatients lists the patients the doctor currently holds a usable
// grant from, derived from the consent listing.
func (h *Handler) ListDoctorPatients(c echo.Context) error {
	doctorID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session principal")
	}
	f := ListFilter{Status: StatusGranted, Search: c.QueryParam("search")}
	pg := pagination.FromContext(c)
	items, _, err := h.registry.ListForDoctor(c.Request().Context(), doctorID, f, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}

	seen := map[uuid.UUID]bool{}
	patients := []CounterpartInfo{}
	for _, l := range items {
		if l.Expired || seen[l.Counterpart.ID] {
			continue
		}
		seen[l.Counterpart.ID] = true
		patients = append(patients, l.Counterpart)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, len(patients), pg.Limit, pg.Offset))
}

func toPermissions(p permissionsBody) Permissions {
	return Permissions{
		CanView:     p.CanView,
		CanDownload: p.CanDownload,
		CanUpdate:   p.CanUpdate,
		CanShare:    p.CanShare,
	}
}

// parseValidUntil accepts either a full RFC 3339 timestamp or a bare date,
// which is what the consent forms submit.
func parseValidUntil(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// mapError translates domain errors to HTTP statuses. The split between 403,
// 409 and 503 is deliberate: "you may not", "someone else got there first"
// and "could not decide" must stay distinguishable.
func mapError(err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidExpiry):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
