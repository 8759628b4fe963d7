package patient

import (
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
	g.POST("/patient-data", h.Register)
	g.GET("/fhir/export/patient/:email", h.ExportByEmail)
	g.GET("/fhir/export/:therapist_email", h.ExportByTherapist)
	g.GET("/therapists/:email/patient-count", h.PatientCount)
}

func (h *Handler) Register(c echo.Context) error {
	var p PatientData
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.svc.Register(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RegisterResponse{
		Message:   "Patient data successfully added in FHIR format",
		PatientID: id,
	})
}

func (h *Handler) ExportByTherapist(c echo.Context) error {
	docs, err := h.svc.ExportByTherapist(c.Request().Context(), c.Param("therapist_email"))
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, fhir.MIMEJSON)
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) ExportByEmail(c echo.Context) error {
	doc, err := h.svc.ExportByEmail(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, fhir.MIMEJSON)
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) PatientCount(c echo.Context) error {
	resp, err := h.svc.CountForTherapist(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
