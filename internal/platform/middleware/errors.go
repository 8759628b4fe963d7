package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/platform/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Detail interface{} `json:"detail"`
}

// StatusFor maps a handler error onto the status it will be rendered with.
func StatusFor(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.HTTPStatus(err)
}

func detailFor(err error) interface{} {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil && he.Code >= http.StatusInternalServerError {
			return http.StatusText(he.Code)
		}
		return he.Message
	}
	if apperr.KindOf(err) != 0 {
		return apperr.Detail(err)
	}
	return http.StatusText(http.StatusInternalServerError)
}

// ErrorHandler renders errors as {"detail": ...}. Application errors keep
// their message; anything unclassified becomes a 500.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, ErrorBody{Detail: detailFor(err)})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
