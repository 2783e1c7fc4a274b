package utils

import (
	"github.com/archives-observability/archives/archerr"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ErrorBody is the HTTP error shape shared by every route.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind archerr.Kind) int {
	switch kind {
	case archerr.InvalidRequest, archerr.InvalidParameter:
		return fiber.StatusBadRequest
	case archerr.StoreUnavailable:
		return fiber.StatusServiceUnavailable
	case archerr.StoreTimeout:
		return fiber.StatusGatewayTimeout
	case archerr.NotFound:
		return fiber.StatusNotFound
	case archerr.NotImplemented:
		return fiber.StatusNotImplemented
	case archerr.RateLimited:
		return fiber.StatusTooManyRequests
	case archerr.TooLarge:
		return fiber.StatusRequestEntityTooLarge
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorResponse writes err with the status derived from its kind.
func ErrorResponse(c *fiber.Ctx, err error) error {
	kind := archerr.KindOf(err)
	body := ErrorBody{
		Error:   string(kind),
		Message: archerr.MessageOf(err),
		Field:   archerr.FieldOf(err),
		TraceID: GetTraceID(c),
	}
	if kind == archerr.Internal {
		// untyped errors may carry driver internals
		body.Message = "internal error"
	}
	return c.Status(StatusForKind(kind)).JSON(body)
}

// StatusErrorResponse writes an error body with an explicit status.
func StatusErrorResponse(c *fiber.Ctx, status int, kind archerr.Kind, message string) error {
	return c.Status(status).JSON(ErrorBody{
		Error:   string(kind),
		Message: message,
		TraceID: GetTraceID(c),
	})
}

// BadRequestResponse reports an undecodable or invalid request body.
func BadRequestResponse(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Bad request"
	}
	return StatusErrorResponse(c, fiber.StatusBadRequest, archerr.InvalidRequest, message)
}

// getTraceID gets or generates a trace ID for request tracking
func getTraceID(c *fiber.Ctx) string {
	if traceID := c.Locals("trace_id"); traceID != nil {
		if id, ok := traceID.(string); ok && id != "" {
			return id
		}
	}
	if traceID := c.Get("X-Trace-ID"); traceID != "" {
		return traceID
	}
	traceID := uuid.New().String()
	SetTraceID(c, traceID)
	return traceID
}

// SetTraceID sets a trace ID in the context
func SetTraceID(c *fiber.Ctx, traceID string) {
	c.Locals("trace_id", traceID)
}

// GetTraceID gets the trace ID from context
func GetTraceID(c *fiber.Ctx) string {
	return getTraceID(c)
}
