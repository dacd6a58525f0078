package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/astrolabs/astroevents/pkg/errs"
)

// renderError maps a domain error to an HTTP response.
func renderError(c *gin.Context, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("unexpected domain error", "path", c.FullPath(), "error", err)
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, errs.ErrBadCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, errs.ErrNoFieldsToUpdate), errors.Is(err, errs.ErrMalformed):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// renderBindError reports a request body that failed validation.
func renderBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
}
