package connection

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/connection-requests")
	g.POST("", h.Create, auth.RequireRole(auth.RoleCaregiver))
	g.GET("", h.List)
	// Authenticated by the token, see auth.AuthSkipper.
	g.GET("/respond", h.Respond)
}

func (h *Handler) Create(c echo.Context) error {
	p, err := auth.RequirePrincipal(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.CreateRequest(c.Request().Context(), p.UserID, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, r)
}

// List returns the caller's pending requests as a patient, or every request
// they sent as a caregiver.
func (h *Handler) List(c echo.Context) error {
	p, err := auth.RequirePrincipal(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if p.HasRole(auth.RolePatient) {
		items, err := h.svc.ListPendingForPatient(ctx, p.UserID)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		return c.JSON(http.StatusOK, items)
	}
	if !p.HasRole(auth.RoleCaregiver) {
		return echo.NewHTTPError(http.StatusForbidden, "only patients and caregivers have connection requests")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForCaregiver(ctx, p.UserID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type respondResult struct {
	Status Status `json:"status"`
	LinkID string `json:"link_id,omitempty"`
}

// Respond is the target of the approve and reject links in invitation
// emails.
func (h *Handler) Respond(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	var accepted bool
	switch c.QueryParam("action") {
	case "accept":
		accepted = true
	case "reject":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "action must be accept or reject")
	}

	r, err := h.svc.Resolve(c.Request().Context(), token, accepted)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	res := respondResult{Status: r.Status}
	if r.LinkID != nil {
		res.LinkID = r.LinkID.String()
	}
	return c.JSON(http.StatusOK, res)
}
