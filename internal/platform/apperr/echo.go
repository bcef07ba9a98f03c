package apperr

import (
	"errors"

	"github.com/labstack/echo/v4"
)

// Body is the JSON error payload returned to API clients.
type Body struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ToHTTP converts an engine error into an echo HTTP error. Internal failures
// never expose their cause.
func ToHTTP(err error) *echo.HTTPError {
	kind := KindOf(err)
	msg := "internal server error"
	var e *Error
	if kind != KindInternal && errors.As(err, &e) {
		msg = e.Message
	}
	he := echo.NewHTTPError(HTTPStatus(kind), Body{
		Code:      kind.String(),
		Message:   msg,
		Retryable: kind == KindTransient,
	})
	he.Internal = err
	return he
}
