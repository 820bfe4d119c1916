package medical

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
	g := api.Group("/patients/:id")
	g.GET("/vitals", h.ListVitals)
	g.POST("/vitals", h.RecordVital)
	g.GET("/medications", h.ListMedications)
	g.POST("/medications", h.AddMedication)
	g.POST("/medications/:med_id/stop", h.StopMedication)
	g.GET("/notes", h.ListNotes)
	g.POST("/notes", h.AddNote)
	g.GET("/mood-logs", h.ListMoodPainLogs)
	g.POST("/mood-logs", h.LogMoodPain)
	g.GET("/allergies", h.ListAllergies)
	g.POST("/allergies", h.AddAllergy)
}

func requestScope(c echo.Context) (auth.Principal, uuid.UUID, error) {
	p, err := auth.RequirePrincipal(c)
	if err != nil {
		return p, uuid.Nil, err
	}
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return p, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	return p, patientID, nil
}

// activeOnly reads ?active=, defaulting to true.
func activeOnly(c echo.Context) bool {
	v, err := strconv.ParseBool(c.QueryParam("active"))
	return err != nil || v
}

func (h *Handler) RecordVital(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	var v Vital
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RecordVital(c.Request().Context(), p, patientID, &v); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) ListVitals(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListVitals(c.Request().Context(), p, patientID, pagination.FromContext(c).Limit)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddMedication(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	var m Medication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddMedication(c.Request().Context(), p, patientID, &m); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) StopMedication(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("med_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medication id")
	}
	if err := h.svc.StopMedication(c.Request().Context(), p, patientID, id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListMedications(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListMedications(c.Request().Context(), p, patientID, activeOnly(c))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddNote(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	var n ClinicalNote
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddNote(c.Request().Context(), p, patientID, &n); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) ListNotes(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListNotes(c.Request().Context(), p, patientID, pagination.FromContext(c).Limit)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) LogMoodPain(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	var l MoodPainLog
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.LogMoodPain(c.Request().Context(), p, patientID, &l); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) ListMoodPainLogs(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListMoodPainLogs(c.Request().Context(), p, patientID, pagination.FromContext(c).Limit)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddAllergy(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	var a Allergy
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddAllergy(c.Request().Context(), p, patientID, &a); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAllergies(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListAllergies(c.Request().Context(), p, patientID, activeOnly(c))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}
