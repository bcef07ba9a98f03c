package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medappt/scheduler/internal/platform/apperr"
)

// ErrorHandler renders every failure as an apperr.Body. Engine errors are
// mapped through apperr.ToHTTP; plain echo errors keep their status.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if !errors.As(err, &he) {
			he = apperr.ToHTTP(err)
		}

		body, ok := he.Message.(apperr.Body)
		if !ok {
			body = apperr.Body{Code: codeForStatus(he.Code), Message: messageOf(he)}
		}

		if he.Code >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("request_id", requestID(c)).Int("status", he.Code).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func messageOf(he *echo.HTTPError) string {
	if s, ok := he.Message.(string); ok {
		return s
	}
	return http.StatusText(he.Code)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperr.KindValidation.String()
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return apperr.KindForbidden.String()
	case http.StatusNotFound:
		return apperr.KindNotFound.String()
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return apperr.KindConflict.String()
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return apperr.KindTransient.String()
	}
	return apperr.KindInternal.String()
}
