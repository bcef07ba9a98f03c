package availability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *Doctor) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store, store, store, 30, time.UTC, zerolog.Nop())
	svc.now = func() time.Time { return sundayAM }
	d := &Doctor{DisplayName: "Dr. Haddad"}
	if err := svc.RegisterDoctor(context.Background(), admin, d); err != nil {
		t.Fatalf("register: %v", err)
	}
	resolver := NewResolver(store, store, store, &fakeOccupancy{}, time.UTC).WithClock(func() time.Time { return sundayAM })
	return NewHandler(svc, resolver), echo.New(), d
}

func newContext(e *echo.Echo, method, target, body string, p *auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_ReplaceTemplateThenSlots(t *testing.T) {
	h, e, d := newTestHandler(t)
	self := auth.Principal{ID: d.ID, Role: auth.RoleDoctor}

	body := `{"entries":[{"day_of_week":1,"start_time":"09:00","end_time":"11:00","consultation_type":"remote","slot_duration_minutes":30}]}`
	c, rec := newContext(e, http.MethodPut, "/", body, &self)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	if err := h.ReplaceTemplate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, rec = newContext(e, http.MethodGet, "/?date=2026-03-02&type=remote", "", &self)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	if err := h.GetSlots(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var avail Availability
	if err := json.Unmarshal(rec.Body.Bytes(), &avail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(avail.Slots) != 4 || avail.Slots[0].Start != tod("09:00") {
		t.Errorf("unexpected slots %+v", avail.Slots)
	}
}

func TestHandler_GetSlots_BadDate(t *testing.T) {
	h, e, d := newTestHandler(t)
	c, _ := newContext(e, http.MethodGet, "/?date=tomorrow", "", &admin)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	err := h.GetSlots(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GetSlots_UnknownDoctor(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := newContext(e, http.MethodGet, "/?date=2026-03-02", "", &admin)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	err := h.GetSlots(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	if body := he.Message.(apperr.Body); body.Code != "not_found" {
		t.Errorf("unexpected code %q", body.Code)
	}
}

func TestHandler_PutException_Forbidden(t *testing.T) {
	h, e, d := newTestHandler(t)
	other := auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}
	c, _ := newContext(e, http.MethodPost, "/", `{"date":"2026-03-02","kind":"blocked"}`, &other)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	err := h.PutException(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestHandler_ExceptionLifecycle(t *testing.T) {
	h, e, d := newTestHandler(t)
	c, rec := newContext(e, http.MethodPost, "/", `{"date":"2026-03-02","kind":"blocked","reason":"leave"}`, &admin)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	if err := h.PutException(c); err != nil {
		t.Fatalf("put: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, rec = newContext(e, http.MethodDelete, "/", "", &admin)
	c.SetParamNames("id", "date")
	c.SetParamValues(d.ID.String(), "2026-03-02")
	if err := h.DeleteException(c); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_RegisterDoctor_Unauthenticated(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := newContext(e, http.MethodPost, "/", `{"display_name":"Dr. X"}`, nil)
	err := h.RegisterDoctor(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
