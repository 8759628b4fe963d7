package therapist

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/blobstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/register/therapist", h.Register)
	g.GET("/getTherapist/:email", h.Get)
	g.POST("/upload-profile-photo", h.UploadProfilePhoto)
	g.GET("/therapist/:email/profile-image", h.ProfileImage)
}

func (h *Handler) Register(c echo.Context) error {
	var t TherapistData
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Register(c.Request().Context(), t); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Therapist registered successfully in both collections as FHIR"})
}

func (h *Handler) Get(c echo.Context) error {
	doc, err := h.svc.Get(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) UploadProfilePhoto(c echo.Context) error {
	email := c.FormValue("email")
	fh, err := c.FormFile("profile_image")
	if err != nil {
		return apperr.Validation("profile_image is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, blobstore.MaxFileSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.svc.UploadProfilePhoto(c.Request().Context(), PhotoUpload{
		Email:       email,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Data:        data,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ProfileImage(c echo.Context) error {
	resp, err := h.svc.ProfileImage(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
