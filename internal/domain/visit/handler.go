package visit

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medappt/scheduler/internal/domain/booking"
	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Writes: doctor only. The service checks it is the appointment's doctor.
	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/appointments/:id/session/start", h.StartSession)
	doctor.POST("/appointments/:id/session/end", h.EndSession)
	doctor.PUT("/appointments/:id/documentation", h.SaveDocumentation)
	doctor.POST("/appointments/:id/prescriptions", h.CreatePrescription)

	// Reads: doctor or patient on the record.
	api.GET("/appointments/:id/session", h.GetSession)
	api.GET("/appointments/:id/documentation", h.GetDocumentation)
	api.GET("/appointments/:id/prescriptions", h.ListPrescriptions)
	api.GET("/appointments/:id/prescriptions/latest", h.GetLatestPrescription)
	api.GET("/prescriptions/:id", h.GetPrescription)
}

// request resolves the caller and the :id parameter shared by every route.
func request(c echo.Context) (auth.Principal, uuid.UUID, error) {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return auth.Principal{}, uuid.Nil, err
	}
	id, err := booking.AppointmentID(c)
	if err != nil {
		return auth.Principal{}, uuid.Nil, err
	}
	return p, id, nil
}

func (h *Handler) StartSession(c echo.Context) error {
	p, id, err := request(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.StartSession(c.Request().Context(), p, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) EndSession(c echo.Context) error {
	p, id, err := request(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.EndSession(c.Request().Context(), p, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) GetSession(c echo.Context) error {
	p, id, err := request(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.GetSession(c.Request().Context(), p, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) SaveDocumentation(c echo.Context) error {
	p, id, err := request(c)
	if err != nil {
		return err
	}
	var d Documentation
	if err := c.Bind(&d); err != nil {
		return apperr.ToHTTP(apperr.Validation("invalid request body"))
	}
	if err := h.svc.SaveDocumentation(c.Request().Context(), p, id, &d); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetDocumentation(c echo.Context) error {
	p, id, err := request(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDocumentation(c.Request().Context(), p, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	p, id, err := request(c)
	if err != nil {
		return err
	}
	var rx Prescription
	if err := c.Bind(&rx); err != nil {
		return apperr.ToHTTP(apperr.Validation("invalid request body"))
	}
	if err := h.svc.CreatePrescription(c.Request().Context(), p, id, &rx); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, rx)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	p, id, err := request(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListPrescriptions(c.Request().Context(), p, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetLatestPrescription(c echo.Context) error {
	p, id, err := request(c)
	if err != nil {
		return err
	}
	rx, err := h.svc.GetLatestPrescription(c.Request().Context(), p, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(apperr.Validation("invalid prescription id"))
	}
	rx, err := h.svc.GetPrescription(c.Request().Context(), p, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rx)
}
