package utils

import (
	"errors"
	"net/http"

	"demobook/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse defines the structure of error responses
type ErrorResponse struct {
	Message string           `json:"message"`
	Details string           `json:"details,omitempty"`
	Kind    models.ErrorKind `json:"kind,omitempty"`
}

// ErrorHandler is a middleware to catch panics and return structured errors
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Unhandled panic", zap.Any("error", err), zap.String("path", c.Request.URL.Path))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Message: "Internal Server Error",
					Details: "An unexpected error occurred. Please try again later.",
					Kind:    models.KindInternal,
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// StatusForKind maps the error taxonomy onto HTTP status codes.
func StatusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidArgument:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	case models.KindInvalidSchedule, models.KindDeliveryRejected:
		return http.StatusUnprocessableEntity
	case models.KindAuthExpired:
		return http.StatusBadGateway
	case models.KindProviderUnavailable, models.KindRelayUnavailable, models.KindCanceled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// JSONError sends a standardized JSON error response
func JSONError(c *gin.Context, logger *zap.Logger, status int, message string, details string) {
	logger.Warn(message, zap.String("details", details))
	c.JSON(status, ErrorResponse{Message: message, Details: details})
}

// JSONKindError classifies err and responds with the matching status.
func JSONKindError(c *gin.Context, logger *zap.Logger, message string, err error) {
	kind := models.KindOf(err)
	status := StatusForKind(kind)
	if status >= http.StatusInternalServerError {
		logger.Error(message, zap.Error(err), zap.String("kind", string(kind)))
	} else {
		logger.Warn(message, zap.Error(err), zap.String("kind", string(kind)))
	}
	details := err.Error()
	var se *models.StageError
	if errors.As(err, &se) && se.Message != "" {
		details = se.Message
	}
	c.JSON(status, ErrorResponse{Message: message, Details: details, Kind: kind})
}
