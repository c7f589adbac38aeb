package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key carrying the request ID.
const RequestIDKey = "request_id"

// RequestMetrics holds in-memory request metrics
type RequestMetrics struct {
	mu                 sync.RWMutex
	TotalRequests      uint64
	RequestsByEndpoint map[string]uint64
}

var metrics = &RequestMetrics{
	RequestsByEndpoint: make(map[string]uint64),
}

// GetMetrics returns the current request metrics
func GetMetrics() RequestMetrics {
	metrics.mu.RLock()
	defer metrics.mu.RUnlock()
	return RequestMetrics{
		TotalRequests:      metrics.TotalRequests,
		RequestsByEndpoint: copyMap(metrics.RequestsByEndpoint),
	}
}

func copyMap(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// StructuredLoggingMiddleware tags every request with an ID and logs
// start/completion with latency.
func StructuredLoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		requestID := uuid.NewString()
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		logger.Info("request started",
			"request_id", requestID,
			"method", method,
			"path", path,
			"query_params", c.Request.URL.Query().Encode(),
			"remote_addr", c.ClientIP(),
		)

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.mu.Lock()
		metrics.TotalRequests++
		endpoint := method + " " + path
		metrics.RequestsByEndpoint[endpoint]++
		metrics.mu.Unlock()

		logger.Info("request completed",
			"request_id", requestID,
			"method", method,
			"path", path,
			"status_code", statusCode,
			"latency_ms", latency.Milliseconds(),
			"bytes_written", c.Writer.Size(),
		)

		if len(c.Errors) > 0 {
			for _, err := range c.Errors {
				logger.Error("request error",
					"request_id", requestID,
					"method", method,
					"path", path,
					"error", err.Error(),
					"latency_ms", latency.Milliseconds(),
				)
			}
		}
	}
}
