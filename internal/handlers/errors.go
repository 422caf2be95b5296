package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muandane/glimpse/internal/browser"
	"github.com/muandane/glimpse/internal/content"
	"github.com/muandane/glimpse/internal/imaging"
	"github.com/muandane/glimpse/internal/middleware"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ValidationError rejects a request before any browser work starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// classify maps a failure to its status code and error kind. The message
// never carries wrapped internals.
func classify(err error) (code int, kind, message string) {
	var (
		ve *ValidationError
		ce *browser.CaptureError
		ie *imaging.ImageError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "ValidationError", ve.Error()
	case errors.Is(err, content.ErrEmptyInput):
		return http.StatusBadRequest, "ValidationError", "html content is required"
	case errors.As(err, &ce):
		switch ce.Kind {
		case browser.Timeout:
			return http.StatusGatewayTimeout, string(ce.Kind), "timed out rendering " + ce.URL
		case browser.NavigationFailed:
			return http.StatusBadGateway, string(ce.Kind), "could not load " + ce.URL
		default:
			return http.StatusInternalServerError, string(ce.Kind), "could not render " + ce.URL
		}
	case errors.As(err, &ie):
		return http.StatusInternalServerError, "ImageError", string(ie.Kind)
	default:
		return http.StatusInternalServerError, "InternalError", "internal server error"
	}
}

func sendError(c *gin.Context, logger *slog.Logger, err error) {
	code, kind, message := classify(err)

	attrs := []any{
		"request_id", middleware.RequestID(c.Request.Context()),
		"path", c.Request.URL.Path,
		"kind", kind,
		"code", code,
		"error", err,
	}
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	c.AbortWithStatusJSON(code, ErrorResponse{Error: kind, Code: code, Message: message})
}
