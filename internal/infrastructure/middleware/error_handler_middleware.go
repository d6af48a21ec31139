package middleware

import (
	"errors"
	"net/http"

	"skybridge/internal/core/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler translates errors pushed onto the Gin context into JSON
// responses, mapping the domain sentinels onto their HTTP statuses.
func ErrorHandler(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrPeerNotFound),
			errors.Is(err, domain.ErrAccountNotFound),
			errors.Is(err, domain.ErrSessionNotFound):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrServerAlreadyRunning):
			status = http.StatusConflict
		case errors.Is(err, domain.ErrServerNotRunning):
			status = http.StatusConflict
		case errors.Is(err, domain.ErrInvalidConfig):
			status = http.StatusBadRequest
		}

		if status == http.StatusInternalServerError {
			logger.Errorw("unhandled API error",
				"error", err.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
		}

		c.JSON(status, gin.H{"error": err.Error()})
	}
}
