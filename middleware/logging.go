package middleware

import (
	"time"

	"github.com/archives-observability/archives/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AccessLogConfig holds access log configuration
type AccessLogConfig struct {
	Logger    *utils.Logger
	SkipPaths []string
	// SkipSuccessLogs drops entries for responses below 400.
	SkipSuccessLogs bool
}

// DefaultAccessLogConfig returns default access log configuration
func DefaultAccessLogConfig() AccessLogConfig {
	return AccessLogConfig{
		Logger:    utils.GetLogger(),
		SkipPaths: []string{"/health", "/ping", "/metrics"},
	}
}

// CorrelationID ensures every request carries X-Trace-ID and X-Request-ID.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}
		c.Set("X-Trace-ID", traceID)

		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("X-Request-ID", requestID)

		utils.SetTraceID(c, traceID)
		c.Locals("request_id", requestID)

		return c.Next()
	}
}

// StructuredLogging stores a request scoped logger in the context.
func StructuredLogging(logger *utils.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		contextLogger := logger.WithTraceID(utils.GetTraceID(c)).WithSource("http").WithContext(map[string]interface{}{
			"request_id": getRequestID(c),
		})
		c.Locals("logger", contextLogger)
		return c.Next()
	}
}

// AccessLog logs one entry per request, levelled by status code.
func AccessLog(config ...AccessLogConfig) fiber.Handler {
	cfg := DefaultAccessLogConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Logger == nil {
		cfg.Logger = utils.GetLogger()
	}

	return func(c *fiber.Ctx) error {
		if shouldSkipPath(c.Path(), cfg.SkipPaths) {
			return c.Next()
		}

		startTime := time.Now()
		err := c.Next()
		duration := time.Since(startTime)

		// the error handler has not run yet, so derive the final status here
		statusCode := c.Response().StatusCode()
		if err != nil {
			statusCode = errorStatus(err)
		}
		if cfg.SkipSuccessLogs && statusCode < 400 {
			return err
		}

		context := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status_code": statusCode,
			"duration_ms": duration.Milliseconds(),
			"ip":          c.IP(),
			"user_agent":  c.Get("User-Agent"),
			"request_id":  getRequestID(c),
		}
		if len(c.Queries()) > 0 {
			context["query_params"] = c.Queries()
		}

		logger := cfg.Logger.WithTraceID(utils.GetTraceID(c)).WithSource("access")
		switch {
		case statusCode >= 500:
			logger.Error("Request completed with server error", err, context)
		case statusCode >= 400:
			if err != nil {
				context["error"] = err.Error()
			}
			logger.Warn("Request completed with client error", context)
		default:
			logger.Info("Request completed successfully", context)
		}

		return err
	}
}

// shouldSkipPath checks if a path should be skipped from logging
func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath {
			return true
		}
	}
	return false
}

// getRequestID gets request ID from context
func getRequestID(c *fiber.Ctx) string {
	if requestID := c.Locals("request_id"); requestID != nil {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// GetLoggerFromContext gets the logger from fiber context
func GetLoggerFromContext(c *fiber.Ctx) *utils.LoggerWithContext {
	if logger := c.Locals("logger"); logger != nil {
		if contextLogger, ok := logger.(*utils.LoggerWithContext); ok {
			return contextLogger
		}
	}

	return utils.GetLogger().WithTraceID(utils.GetTraceID(c)).WithSource("http").WithContext(map[string]interface{}{
		"request_id": getRequestID(c),
	})
}
