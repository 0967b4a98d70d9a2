package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/astrofuse/astrofuse-backend/internal/services"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps the service error taxonomy onto HTTP statuses so
// callers always get a structured envelope, never a stack trace.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidRadius):
		RespondError(c, http.StatusBadRequest, "invalid_radius", err)
	case errors.Is(err, services.ErrInvalidRecord):
		RespondError(c, http.StatusBadRequest, "invalid_record", err)
	case errors.Is(err, services.ErrConcurrentRun):
		RespondError(c, http.StatusConflict, "cross_match_in_progress", err)
	case errors.Is(err, services.ErrGroupNotFound):
		RespondError(c, http.StatusNotFound, "group_not_found", err)
	case errors.Is(err, services.ErrRunNotFound):
		RespondError(c, http.StatusNotFound, "run_not_found", err)
	case errors.Is(err, services.ErrStoreUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
