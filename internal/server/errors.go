package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/core/populate"
	"github.com/agenthands/crosswalk/internal/core/projection"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found"
	case errors.Is(err, model.ErrProductIneligible):
		return http.StatusNotFound, "product_ineligible"
	case errors.Is(err, model.ErrSameProduct):
		return http.StatusBadRequest, "same_product"
	case errors.Is(err, model.ErrMalformedPayload):
		return http.StatusBadRequest, "malformed_payload"
	case errors.Is(err, populate.ErrRunning):
		return http.StatusConflict, "population_running"
	case errors.Is(err, projection.ErrDisabled):
		return http.StatusServiceUnavailable, "graph_disabled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	respondError(c, status, code, err)
}
