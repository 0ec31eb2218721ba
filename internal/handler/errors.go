package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/listing-market/internal/apperr"
)

type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// ErrorHandler renders every error returned by handlers and middleware as
// {"message", "errors"} with the status derived from its kind. Causes of
// internal errors are logged and never rendered.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := render(err)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(c.Request().Context(), "http.internal_error",
				"method", c.Request().Method,
				"path", c.Path(),
				"err", err,
			)
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.WarnContext(c.Request().Context(), "http.write_error", "err", err)
		}
	}
}

func render(err error) (int, errorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, errorBody{Message: msg}
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Kind.Status(), errorBody{Message: ae.Message, Errors: ae.Fields}
	}
	return http.StatusInternalServerError, errorBody{Message: http.StatusText(http.StatusInternalServerError)}
}
