package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"deptfunds/internal/core"
	applog "deptfunds/internal/log"
	"deptfunds/internal/services"
)

// statusFor maps error kinds to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes {"message": ...}. Domain messages reach the client; internal
// failures are logged and replaced by fallback.
func (s *Server) fail(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	msg := core.Message(err, fallback)
	if errors.Is(err, services.ErrInvalidCredentials) {
		msg = "Invalid email or password"
	}
	if status >= http.StatusInternalServerError {
		ctx := c.Request.Context()
		applog.FromContext(ctx).ErrorContext(ctx, fallback, applog.FieldError, err)
		msg = fallback
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": message})
}
