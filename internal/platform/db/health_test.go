package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func runHealth(t *testing.T, h echo.HandlerFunc) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, body
}

func testStats() *PoolStats {
	return &PoolStats{TotalConns: 4, IdleConns: 3, AcquiredConns: 1, MaxConns: 20, AcquireDuration: "1ms"}
}

func TestHealthHandler_Healthy(t *testing.T) {
	code, body := runHealth(t, healthHandler(fakePinger{}, testStats))
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected status %v", body["status"])
	}
	pool, ok := body["pool"].(map[string]interface{})
	if !ok || pool["max_conns"] != float64(20) {
		t.Errorf("unexpected pool stats %v", body["pool"])
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	code, body := runHealth(t, healthHandler(fakePinger{err: context.DeadlineExceeded}, testStats))
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if body["retryable"] != true {
		t.Errorf("expected a ping timeout to be retryable, got %v", body["retryable"])
	}

	_, body = runHealth(t, healthHandler(fakePinger{err: errors.New("bad password")}, testStats))
	if body["retryable"] != false {
		t.Errorf("expected auth failure to be permanent, got %v", body["retryable"])
	}
}

func TestStaticHealthHandler(t *testing.T) {
	code, body := runHealth(t, StaticHealthHandler("memory"))
	if code != http.StatusOK || body["storage"] != "memory" {
		t.Errorf("unexpected response %d %v", code, body)
	}
}
