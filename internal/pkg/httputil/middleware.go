package httputil

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/username/threadline/internal/pkg/constants"
	"github.com/username/threadline/internal/pkg/logutil"
)

// ContextKey represents a context key type to avoid collisions
type ContextKey string

const (
	// TimeoutConfigKey is the context key for timeout configuration
	TimeoutConfigKey ContextKey = "timeout_config"
	// RequestIDKey is the context key for the request ID
	RequestIDKey ContextKey = "request_id"
)

// Operation types used to pick a timeout
const (
	OperationStore     = "store"
	OperationMessaging = "messaging"
	OperationLedger    = "ledger"
)

// MiddlewareConfig holds middleware configuration
type MiddlewareConfig struct {
	Timeouts       TimeoutConfig
	EnableCORS     bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// DefaultMiddlewareConfig provides sensible defaults
var DefaultMiddlewareConfig = MiddlewareConfig{
	Timeouts:       DefaultTimeouts,
	EnableCORS:     true,
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	AllowedHeaders: []string{"Content-Type", "Authorization", constants.HeaderRequestID},
}

// TimeoutMiddleware creates a middleware that injects timeout configuration into context
func TimeoutMiddleware(config TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(string(TimeoutConfigKey), config)
		c.Next()
	}
}

// CORSMiddleware creates a configurable CORS middleware
func CORSMiddleware(config MiddlewareConfig) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(config.AllowedMethods) > 0 {
		methods = strings.Join(config.AllowedMethods, ", ")
	}
	headers := "Content-Type, Authorization"
	if len(config.AllowedHeaders) > 0 {
		headers = strings.Join(config.AllowedHeaders, ", ")
	}

	return func(c *gin.Context) {
		if config.EnableCORS {
			for _, origin := range config.AllowedOrigins {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)

			if c.Request.Method == "OPTIONS" {
				c.AbortWithStatus(204)
				return
			}
		}
		c.Next()
	}
}

// RequestIDMiddleware propagates X-Request-ID, generating one when absent
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(constants.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(string(RequestIDKey), id)
		c.Header(constants.HeaderRequestID, id)
		c.Next()
	}
}

// RequestLoggerMiddleware logs one line per request
func RequestLoggerMiddleware(logger *logutil.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logutil.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		}
		if id, ok := c.Get(string(RequestIDKey)); ok {
			fields["request_id"] = id
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("HTTP request", fields)
		case status >= 400:
			logger.Warn("HTTP request", fields)
		default:
			logger.Debug("HTTP request", fields)
		}
	}
}

// GetTimeoutForOperation retrieves appropriate timeout for operation from context
func GetTimeoutForOperation(c *gin.Context, operationType string) time.Duration {
	configInterface, exists := c.Get(string(TimeoutConfigKey))
	if !exists {
		return DefaultTimeouts.Default
	}

	config, ok := configInterface.(TimeoutConfig)
	if !ok {
		return DefaultTimeouts.Default
	}

	switch operationType {
	case OperationStore, OperationLedger:
		return config.Default
	case OperationMessaging:
		return config.Short
	default:
		return config.Default
	}
}

// WithOperationContext derives a request-scoped context bounded by the operation's timeout
func WithOperationContext(c *gin.Context, operationType string) (context.Context, context.CancelFunc) {
	parent := context.Background()
	if c.Request != nil {
		parent = c.Request.Context()
	}
	return context.WithTimeout(parent, GetTimeoutForOperation(c, operationType))
}
