package link

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
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
	g := api.Group("/links/:kind")
	g.POST("", h.CreateLink)
	g.GET("", h.ListLinks)
	g.GET("/:id", h.GetLink)
	g.PATCH("/:id", h.UpdateLink)
	g.POST("/:id/suspend", h.Suspend)
	g.POST("/:id/reactivate", h.Reactivate)
	g.POST("/:id/revoke", h.Revoke)
	g.PUT("/:id/status", h.ForceStatus, auth.RequireRole(auth.RoleAdmin))
}

func kindParam(c echo.Context) (Kind, error) {
	k, err := ParseKind(c.Param("kind"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return k, nil
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// loadForCaller resolves the path link and checks that the caller is an
// admin or one of its parties. patientOnly narrows the parties to the
// patient.
func (h *Handler) loadForCaller(c echo.Context, patientOnly bool) (auth.Principal, *Record, error) {
	p, err := auth.RequirePrincipal(c)
	if err != nil {
		return p, nil, err
	}
	kind, err := kindParam(c)
	if err != nil {
		return p, nil, err
	}
	id, err := idParam(c)
	if err != nil {
		return p, nil, err
	}
	r, err := h.svc.GetLink(c.Request().Context(), kind, id)
	if err != nil {
		return p, nil, apperr.ToHTTP(err)
	}
	if p.IsAdmin() || r.PatientUserID == p.UserID || (!patientOnly && r.SubjectUserID == p.UserID) {
		return p, r, nil
	}
	return p, nil, echo.NewHTTPError(http.StatusForbidden, "not a party to this link")
}

// CreateLink is open to admins and to the patient of the new link.
func (h *Handler) CreateLink(c echo.Context) error {
	p, err := auth.RequirePrincipal(c)
	if err != nil {
		return err
	}
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !p.IsAdmin() && in.PatientUserID != p.UserID {
		return echo.NewHTTPError(http.StatusForbidden, "only the patient or an admin can create a link")
	}
	in.Kind = kind
	in.CreatedByUserID = p.UserID

	r, err := h.svc.CreateLink(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetLink(c echo.Context) error {
	_, r, err := h.loadForCaller(c, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

// ListLinks returns the caller's currently authorizing links. Admins may
// pass subject_user_id or patient_user_id, and history=true for links in
// every status.
func (h *Handler) ListLinks(c echo.Context) error {
	p, err := auth.RequirePrincipal(c)
	if err != nil {
		return err
	}
	kind, err := kindParam(c)
	if err != nil {
		return err
	}

	var f ListFilter
	if v := c.QueryParam("subject_user_id"); v != "" {
		if f.SubjectUserID, err = uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid subject_user_id")
		}
	}
	if v := c.QueryParam("patient_user_id"); v != "" {
		if f.PatientUserID, err = uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_user_id")
		}
	}
	if f.SubjectUserID == uuid.Nil && f.PatientUserID == uuid.Nil && !p.IsAdmin() {
		if p.HasRole(auth.RolePatient) {
			f.PatientUserID = p.UserID
		} else {
			f.SubjectUserID = p.UserID
		}
	}
	if !p.IsAdmin() && f.SubjectUserID != p.UserID && f.PatientUserID != p.UserID {
		return echo.NewHTTPError(http.StatusForbidden, "can only list your own links")
	}

	ctx := c.Request().Context()
	history, _ := strconv.ParseBool(c.QueryParam("history"))
	if history || (f.SubjectUserID == uuid.Nil && f.PatientUserID == uuid.Nil) {
		f.Status = Status(c.QueryParam("status"))
		pg := pagination.FromContext(c)
		items, total, err := h.svc.ListLinks(ctx, kind, f, pg.Limit, pg.Offset)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
	}

	var items []*Record
	if f.SubjectUserID != uuid.Nil {
		items, err = h.svc.ActiveLinksForSubject(ctx, kind, f.SubjectUserID)
	} else {
		items, err = h.svc.ActiveLinksForPatient(ctx, kind, f.PatientUserID)
	}
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if f.SubjectUserID != uuid.Nil && f.PatientUserID != uuid.Nil {
		filtered := items[:0]
		for _, r := range items {
			if r.PatientUserID == f.PatientUserID {
				filtered = append(filtered, r)
			}
		}
		items = filtered
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateLink(c echo.Context) error {
	_, r, err := h.loadForCaller(c, true)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.UpdateLink(c.Request().Context(), r.Kind, r.ID, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Suspend(c echo.Context) error {
	_, r, err := h.loadForCaller(c, true)
	if err != nil {
		return err
	}
	updated, err := h.svc.Suspend(c.Request().Context(), r.Kind, r.ID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Reactivate(c echo.Context) error {
	_, r, err := h.loadForCaller(c, true)
	if err != nil {
		return err
	}
	updated, err := h.svc.Reactivate(c.Request().Context(), r.Kind, r.ID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Revoke is open to both parties: a caregiver may end their own link.
func (h *Handler) Revoke(c echo.Context) error {
	_, r, err := h.loadForCaller(c, false)
	if err != nil {
		return err
	}
	updated, err := h.svc.Revoke(c.Request().Context(), r.Kind, r.ID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}

type forceStatusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) ForceStatus(c echo.Context) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req forceStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.AdminForceStatus(c.Request().Context(), kind, id, req.Status)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}
