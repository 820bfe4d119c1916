package directory

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
)

// Authorizer decides whether the caller may read a patient's data.
type Authorizer interface {
	Authorize(ctx context.Context, p auth.Principal, patientID uuid.UUID) error
}

type Handler struct {
	svc   *Service
	authz Authorizer
}

func NewHandler(svc *Service, authz Authorizer) *Handler {
	return &Handler{svc: svc, authz: authz}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/users", h.CreateUser)
	admin.POST("/patients", h.CreatePatient)

	api.GET("/users/me", h.Me)
	api.GET("/users/:id", h.GetUser)
	api.PUT("/users/me/device-token", h.SetDeviceToken)
	api.GET("/patients/:id", h.GetPatient)
}

func (h *Handler) CreateUser(c echo.Context) error {
	var u User
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateUser(c.Request().Context(), &u); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Me(c echo.Context) error {
	p, err := auth.RequirePrincipal(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), p.UserID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

// GetUser returns a user to themselves or to an admin.
func (h *Handler) GetUser(c echo.Context) error {
	p, err := auth.RequirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if id != p.UserID && !p.IsAdmin() {
		return echo.NewHTTPError(http.StatusForbidden, "not allowed to read this user")
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

type deviceTokenRequest struct {
	Token string `json:"token"`
}

func (h *Handler) SetDeviceToken(c echo.Context) error {
	p, err := auth.RequirePrincipal(c)
	if err != nil {
		return err
	}
	var req deviceTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetDeviceToken(c.Request().Context(), p.UserID, req.Token); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var pt Patient
	if err := c.Bind(&pt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &pt); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, pt)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := auth.RequirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.authz.Authorize(ctx, p, id); err != nil {
		return apperr.ToHTTP(err)
	}
	profile, err := h.svc.GetPatientProfile(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, profile)
}
