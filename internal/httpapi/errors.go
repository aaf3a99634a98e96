package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/apperrors"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// statusFor maps an application error to its HTTP status.
func statusFor(err error) int {
	switch {
	case apperrors.IsValidationError(err), apperrors.IsBadRequestError(err):
		return http.StatusBadRequest
	case apperrors.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	case apperrors.IsNotFoundError(err):
		return http.StatusNotFound
	case apperrors.IsDuplicateError(err), apperrors.IsConflictError(err):
		return http.StatusConflict
	case apperrors.IsRateLimitedError(err):
		return http.StatusTooManyRequests
	case apperrors.IsTimeoutError(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status and aborts the chain.
// Server-side failures are logged and their text is not exposed.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	switch {
	case status == http.StatusBadRequest:
		resp.Error = apperrors.ErrValidation.Error()
		if errors.Is(err, apperrors.ErrBadRequest) {
			resp.Error = err.Error()
		}
		if fields := apperrors.Fields(err); len(fields) > 0 {
			resp.Details = fields
		}
	case status >= http.StatusInternalServerError:
		logger.FromContext(c.Request.Context()).Error("Request failed", zap.Error(err))
		resp.Error = http.StatusText(status)
	}

	c.AbortWithStatusJSON(status, resp)
}
