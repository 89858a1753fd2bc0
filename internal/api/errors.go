package api

import (
	"errors"
	"net/http"

	"github.com/cms-article-engine/internal/models"
	"github.com/gin-gonic/gin"
)

// statusFor maps the service error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidOperation), errors.Is(err, models.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the mapped status; internal errors are not echoed
func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		message = "internal server error"
	}
	c.JSON(code, gin.H{"error": message})
}

// writeResult responds with a command result.
// An unsuccessful result without an error is a validation failure.
func writeResult(c *gin.Context, successCode int, result *models.CommandResult, err error) {
	switch {
	case err != nil:
		code := statusFor(err)
		if result == nil {
			result = models.Failed(err)
		}
		if code == http.StatusInternalServerError {
			result.ErrorMessage = "internal server error"
		}
		c.JSON(code, result)
	case result == nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	case !result.IsSuccess:
		c.JSON(http.StatusBadRequest, result)
	default:
		c.JSON(successCode, result)
	}
}
