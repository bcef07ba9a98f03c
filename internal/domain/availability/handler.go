package availability

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/internal/platform/auth"
	"github.com/medappt/scheduler/pkg/pagination"
)

type Handler struct {
	svc      *Service
	resolver *Resolver
}

func NewHandler(svc *Service, resolver *Resolver) *Handler {
	return &Handler{svc: svc, resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Reads are open to any authenticated caller.
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/doctors/:id/slots", h.GetSlots)
	api.GET("/doctors/:id/booked", h.GetBooked)
	api.GET("/doctors/:id/template", h.GetTemplate)
	api.GET("/doctors/:id/exceptions", h.ListExceptions)

	api.POST("/doctors", h.RegisterDoctor, auth.RequireRole(auth.RoleAdmin))

	// The service narrows these to the doctor who owns the calendar.
	manage := api.Group("", auth.RequireRole(auth.RoleDoctor))
	manage.PUT("/doctors/:id/template", h.ReplaceTemplate)
	manage.POST("/doctors/:id/exceptions", h.PutException)
	manage.DELETE("/doctors/:id/exceptions/:date", h.DeleteException)
}

func doctorID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.ToHTTP(apperr.Validation("invalid doctor id"))
	}
	return id, nil
}

func dateParam(raw string) (Date, error) {
	if raw == "" {
		return Date{}, apperr.ToHTTP(apperr.Validation("date is required"))
	}
	d, err := ParseDate(raw)
	if err != nil {
		return Date{}, apperr.ToHTTP(apperr.Validation("%s", err.Error()))
	}
	return d, nil
}

// -- Doctors --

func (h *Handler) RegisterDoctor(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return apperr.ToHTTP(apperr.Validation("invalid request body"))
	}
	if err := h.svc.RegisterDoctor(c.Request().Context(), p, &d); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

// -- Slots --

func (h *Handler) GetSlots(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	date, err := dateParam(c.QueryParam("date"))
	if err != nil {
		return err
	}
	q := SlotQuery{DoctorID: id, Date: date, Type: ConsultationType(c.QueryParam("type"))}
	if q.Type == "" {
		q.Type = InPerson
	}
	if raw := c.QueryParam("duration"); raw != "" {
		q.Duration, err = strconv.Atoi(raw)
		if err != nil {
			return apperr.ToHTTP(apperr.Validation("duration must be a number of minutes"))
		}
	}
	avail, err := h.resolver.GetAvailableSlots(c.Request().Context(), q)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, avail)
}

func (h *Handler) GetBooked(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	date, err := dateParam(c.QueryParam("date"))
	if err != nil {
		return err
	}
	booked, err := h.resolver.GetBookedIntervals(c.Request().Context(), id, date)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id": id,
		"date":      date,
		"booked":    booked,
	})
}

// -- Template --

type templateRequest struct {
	Entries []TemplateEntry `json:"entries"`
}

func (h *Handler) GetTemplate(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	entries, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, templateRequest{Entries: entries})
}

func (h *Handler) ReplaceTemplate(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.ToHTTP(apperr.Validation("invalid request body"))
	}
	entries, err := h.svc.ReplaceTemplate(c.Request().Context(), p, id, req.Entries)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, templateRequest{Entries: entries})
}

// -- Exceptions --

func (h *Handler) ListExceptions(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListExceptions(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) PutException(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	var e Exception
	if err := c.Bind(&e); err != nil {
		return apperr.ToHTTP(apperr.Validation("invalid request body"))
	}
	e.DoctorID = id
	if err := h.svc.PutException(c.Request().Context(), p, &e); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteException(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	date, err := dateParam(c.Param("date"))
	if err != nil {
		return err
	}
	if err := h.svc.DeleteException(c.Request().Context(), p, id, date); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
