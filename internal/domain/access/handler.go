package access

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/access", h.CheckAccess)
}

type checkResult struct {
	PatientID uuid.UUID `json:"patient_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role,omitempty"`
	HasAccess bool      `json:"has_access"`
}

// CheckAccess reports whether the caller may access the patient. Admins may
// check another user with ?user_id=&role=.
func (h *Handler) CheckAccess(c echo.Context) error {
	p, err := auth.RequirePrincipal(c)
	if err != nil {
		return err
	}
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	ctx := c.Request().Context()

	if v := c.QueryParam("user_id"); v != "" {
		if !p.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, "only admins can check other users")
		}
		userID, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
		}
		role := c.QueryParam("role")
		return c.JSON(http.StatusOK, checkResult{
			PatientID: patientID,
			UserID:    userID,
			Role:      role,
			HasAccess: h.svc.HasAccess(ctx, userID, role, patientID),
		})
	}

	return c.JSON(http.StatusOK, checkResult{
		PatientID: patientID,
		UserID:    p.UserID,
		HasAccess: h.svc.Authorize(ctx, p, patientID) == nil,
	})
}
