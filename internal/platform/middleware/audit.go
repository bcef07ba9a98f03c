package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medappt/scheduler/internal/platform/auth"
)

// AuditEntry describes one state-changing API call.
type AuditEntry struct {
	Principal  string
	Action     string
	Resource   string
	ResourceID string
	Method     string
	Path       string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries. Failures are logged, never returned.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every mutating call under /api/v1/ after the handler ran.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			resource, id := splitResource(req.URL.Path)
			entry := AuditEntry{
				Action:     auditAction(req.Method, req.URL.Path),
				Resource:   resource,
				ResourceID: id,
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				RequestID:  requestID(c),
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}
			if p, ok := auth.PrincipalFromContext(req.Context()); ok {
				entry.Principal = p.String()
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("principal", entry.Principal).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Int("status", entry.StatusCode).
				Str("remote_ip", entry.IPAddress).
				Msg("api_write")

			return err
		}
	}
}

func isAuditable(method, path string) bool {
	if !strings.HasPrefix(path, "/api/v1/") {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// auditAction names the operation: the trailing verb segment for RPC-style
// routes (".../session/start", ".../cancel"), otherwise the CRUD verb.
func auditAction(method, path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	last := segs[len(segs)-1]
	switch last {
	case "start", "end", "cancel":
		return last
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "read"
}

// splitResource returns the collection and id of /api/v1/<collection>/<id>/...
func splitResource(path string) (string, string) {
	segs := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	resource := segs[0]
	if resource == "" {
		resource = "unknown"
	}
	if len(segs) > 1 {
		return resource, segs[1]
	}
	return resource, ""
}
