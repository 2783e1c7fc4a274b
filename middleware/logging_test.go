package middleware

import (
	"net/http"
	"testing"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*utils.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return utils.NewLoggerWithCore(core), logs
}

func TestCorrelationID(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"trace_id":   utils.GetTraceID(c),
			"request_id": getRequestID(c),
		})
	})

	tests := []struct {
		name      string
		traceID   string
		requestID string
	}{
		{name: "Generated IDs"},
		{name: "Propagated IDs", traceID: "trace-123", requestID: "req-456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/test", nil)
			if tt.traceID != "" {
				req.Header.Set("X-Trace-ID", tt.traceID)
				req.Header.Set("X-Request-ID", tt.requestID)
			}

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)

			if tt.traceID != "" {
				assert.Equal(t, tt.traceID, resp.Header.Get("X-Trace-ID"))
				assert.Equal(t, tt.requestID, resp.Header.Get("X-Request-ID"))
			} else {
				assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))
				assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
			}
		})
	}
}

func TestStructuredLogging(t *testing.T) {
	logger, logs := observedLogger()

	app := fiber.New()
	app.Use(CorrelationID())
	app.Use(StructuredLogging(logger))
	app.Get("/test", func(c *fiber.Ctx) error {
		GetLoggerFromContext(c).Info("handled")
		return c.SendString("OK")
	})

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Trace-ID", "trace-abc")
	_, err := app.Test(req, -1)
	require.NoError(t, err)

	entries := logs.FilterMessage("handled").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "trace-abc", fields["trace_id"])
	assert.Equal(t, "http", fields["source"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestGetLoggerFromContext_Fallback(t *testing.T) {
	app := fiber.New()
	app.Get("/test", func(c *fiber.Ctx) error {
		assert.NotNil(t, GetLoggerFromContext(c))
		return c.SendString("OK")
	})

	resp, err := app.Test(newGet("/test"), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestAccessLog(t *testing.T) {
	logger, logs := observedLogger()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	app.Use(CorrelationID())
	app.Use(AccessLog(AccessLogConfig{Logger: logger, SkipPaths: []string{"/health"}}))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("OK") })
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("OK") })
	app.Get("/bad", func(c *fiber.Ctx) error { return archerr.Param("limit", "must be positive") })
	app.Get("/down", func(c *fiber.Ctx) error { return archerr.New(archerr.StoreUnavailable, "no store") })

	tests := []struct {
		path   string
		status int
		level  zapcore.Level
		logged bool
	}{
		{"/ok", 200, zapcore.InfoLevel, true},
		{"/health", 200, zapcore.InfoLevel, false},
		{"/bad", 400, zapcore.WarnLevel, true},
		{"/down", 503, zapcore.ErrorLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			logs.TakeAll()

			resp, err := app.Test(newGet(tt.path), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			entries := logs.All()
			if !tt.logged {
				assert.Empty(t, entries)
				return
			}
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.EqualValues(t, tt.status, entries[0].ContextMap()["status_code"])
		})
	}
}

func newGet(path string) *http.Request {
	req, _ := http.NewRequest("GET", path, nil)
	return req
}
