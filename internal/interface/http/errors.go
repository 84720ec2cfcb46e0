package http

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
)

// Error codes returned in APIError.Code.
const (
	CodeBadRequest = "bad_request"
	CodeValidation = "validation_failed"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeExpired    = "expired"
	CodeInternal   = "internal_error"
)

// newErrorHandler maps handler errors to JSON responses.
func newErrorHandler(v *requestValidator, logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, apiErr := classify(err, v)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"route", c.Path(),
				"error", err,
			)
		}
		if c.Echo().Debug {
			apiErr.Message = err.Error()
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, JSONResponse{Success: false, Error: apiErr, Meta: newMeta(c)})
		}
		if werr != nil {
			logger.Warn("write error response", "error", werr)
		}
	}
}

func classify(err error, v *requestValidator) (int, *APIError) {
	switch cause := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if inner, ok := cause.Internal.(*echo.HTTPError); ok {
			cause = inner
		}
		msg, ok := cause.Message.(string)
		if !ok {
			msg = http.StatusText(cause.Code)
		}
		code := CodeBadRequest
		switch cause.Code {
		case http.StatusNotFound:
			code = CodeNotFound
		case http.StatusInternalServerError:
			code = CodeInternal
		}
		return cause.Code, &APIError{Code: code, Message: msg}
	case validator.ValidationErrors:
		return http.StatusBadRequest, &APIError{
			Code:    CodeValidation,
			Message: "request validation failed",
			Fields:  v.translate(cause),
		}
	}

	switch {
	case shared.IsNotFound(err):
		return http.StatusNotFound, &APIError{Code: CodeNotFound, Message: domainMessage(err)}
	case shared.IsValidation(err):
		return http.StatusBadRequest, &APIError{Code: CodeValidation, Message: domainMessage(err)}
	case errors.Is(err, shared.ErrExpired):
		return http.StatusUnprocessableEntity, &APIError{Code: CodeExpired, Message: domainMessage(err)}
	case shared.IsPersistenceConflict(err), shared.IsAlreadyExists(err):
		return http.StatusConflict, &APIError{Code: CodeConflict, Message: domainMessage(err)}
	}
	return http.StatusInternalServerError, &APIError{
		Code:    CodeInternal,
		Message: http.StatusText(http.StatusInternalServerError),
	}
}

// domainMessage returns the human-readable part of a domain error.
func domainMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
