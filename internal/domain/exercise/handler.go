package exercise

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rehab/rehab/internal/platform/fhir"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/upload-exercise/", h.Upload)
	g.POST("/upload-exercise", h.Upload)
	g.GET("/get-exercise-bundles/:user_id", h.GetBundles)
	g.GET("/tests-summary", h.TestsSummary)
}

func (h *Handler) Upload(c echo.Context) error {
	key := SubjectKey{
		Email:     c.QueryParam("email"),
		FirstName: c.QueryParam("first_name"),
		LastName:  c.QueryParam("last_name"),
	}
	var records []ExerciseRecord
	if err := json.NewDecoder(c.Request().Body).Decode(&records); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid exercise records: "+err.Error())
	}
	res, err := h.svc.UploadExercises(c.Request().Context(), key, records)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetBundles(c echo.Context) error {
	docs, err := h.svc.GetBundles(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, fhir.MIMEJSON)
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) TestsSummary(c echo.Context) error {
	summary, err := h.svc.TestsSummary(c.Request().Context(), c.QueryParam("therapist_email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}
