package aicontext

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
)

type Handler struct {
	configs  *ConfigService
	pipeline *Pipeline
}

func NewHandler(configs *ConfigService, pipeline *Pipeline) *Handler {
	return &Handler{configs: configs, pipeline: pipeline}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients/:id")
	g.GET("/ai-config", h.GetConfig)
	g.POST("/ai-config", h.SaveConfig)
	g.GET("/ai-config/history", h.ConfigHistory)
	g.POST("/ai/context", h.PrepareContext)
	g.POST("/ai/chat", h.Chat)
	g.GET("/ai/disclosures", h.ListDisclosures)
	g.DELETE("/pseudonyms", h.ClearPseudonyms, auth.RequireRole(auth.RoleAdmin))
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

func (h *Handler) GetConfig(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	cfg, err := h.configs.Get(c.Request().Context(), p, patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *Handler) SaveConfig(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	var in ConfigInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cfg, err := h.configs.Save(c.Request().Context(), p, patientID, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, cfg)
}

func (h *Handler) ConfigHistory(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	items, err := h.configs.History(c.Request().Context(), p, patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) PrepareContext(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	var in PrepareInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	prep, err := h.pipeline.Prepare(c.Request().Context(), p, patientID, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, prep)
}

func (h *Handler) Chat(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	var in ChatInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.pipeline.Chat(c.Request().Context(), p, patientID, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

// ListDisclosures takes optional RFC 3339 from and to bounds.
func (h *Handler) ListDisclosures(c echo.Context) error {
	p, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	var from, to time.Time
	if v := c.QueryParam("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
	}
	items, err := h.pipeline.Disclosures(c.Request().Context(), p, patientID, from, to)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ClearPseudonyms(c echo.Context) error {
	_, patientID, err := requestScope(c)
	if err != nil {
		return err
	}
	if err := h.pipeline.ClearPseudonyms(c.Request().Context(), patientID); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
