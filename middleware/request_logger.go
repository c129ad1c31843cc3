package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// LoggerKey holds the request-scoped *zap.Logger in the Gin context.
	LoggerKey = "logger"

	RequestIDHeader = "X-Request-ID"
)

// RequestLogger tags every request with an id, stores a logger carrying it
// under LoggerKey and logs the completed request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		reqLogger := logger.With(zap.String("requestId", requestID))
		c.Set(LoggerKey, reqLogger)

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIP", getClientIP(c)),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			reqLogger.Error("Request failed", fields...)
		case status >= 400:
			reqLogger.Warn("Request rejected", fields...)
		default:
			reqLogger.Info("Request completed", fields...)
		}
	}
}
