package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/utils"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the app level fiber.ErrorHandler. Typed errors keep their
// kind; framework errors keep their status.
func ErrorHandler(logger *utils.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return utils.StatusErrorResponse(c, fiberErr.Code, kindForStatus(fiberErr.Code), fiberErr.Message)
		}

		if archerr.KindOf(err) == archerr.Internal {
			logger.WithTraceID(utils.GetTraceID(c)).WithSource("error").Error("Unhandled request error", err, map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
			})
		}
		return utils.ErrorResponse(c, err)
	}
}

// PanicRecovery turns a handler panic into an Internal error response.
func PanicRecovery(logger *utils.Logger) fiber.Handler {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithTraceID(utils.GetTraceID(c)).WithSource("panic").Error("Panic recovered", nil, map[string]interface{}{
					"method":      c.Method(),
					"path":        c.Path(),
					"panic_value": fmt.Sprintf("%v", r),
					"stack_trace": string(debug.Stack()),
				})
				err = utils.ErrorResponse(c, archerr.New(archerr.Internal, "unexpected panic"))
			}
		}()

		return c.Next()
	}
}

// NotFoundHandler answers routes nobody registered.
func NotFoundHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return utils.StatusErrorResponse(c, fiber.StatusNotFound, archerr.NotFound,
			fmt.Sprintf("no route for %s %s", c.Method(), c.Path()))
	}
}

func kindForStatus(status int) archerr.Kind {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusMethodNotAllowed, fiber.StatusUnprocessableEntity:
		return archerr.InvalidRequest
	case fiber.StatusNotFound:
		return archerr.NotFound
	case fiber.StatusRequestEntityTooLarge:
		return archerr.TooLarge
	case fiber.StatusTooManyRequests:
		return archerr.RateLimited
	case fiber.StatusServiceUnavailable:
		return archerr.StoreUnavailable
	case fiber.StatusGatewayTimeout, fiber.StatusRequestTimeout:
		return archerr.StoreTimeout
	default:
		return archerr.Internal
	}
}

// errorStatus predicts the status ErrorHandler will write for err.
func errorStatus(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	return utils.StatusForKind(archerr.KindOf(err))
}
