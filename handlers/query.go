package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/services"
	"github.com/archives-observability/archives/utils"
	"github.com/gofiber/fiber/v2"
)

// DefaultRequestTimeout bounds one API request end to end.
const DefaultRequestTimeout = 30 * time.Second

// HealthResponse is returned by GET /health on both surfaces.
type HealthResponse struct {
	Status         string `json:"status"`
	StoreConnected bool   `json:"store_connected"`
}

// QueryHandler serves the REST query routes.
type QueryHandler struct {
	service services.QueryServiceInterface
	logger  *utils.Logger
	timeout time.Duration
}

// NewQueryHandler creates a new query handler instance. A non-positive
// timeout uses DefaultRequestTimeout.
func NewQueryHandler(service services.QueryServiceInterface, timeout time.Duration) *QueryHandler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &QueryHandler{
		service: service,
		logger:  utils.GetLogger(),
		timeout: timeout,
	}
}

// Health handles GET /health
func (h *QueryHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{Status: "unhealthy"})
	}
	return c.JSON(HealthResponse{Status: "healthy", StoreConnected: true})
}

// Status handles GET /v1/status
func (h *QueryHandler) Status(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	status, err := h.service.Status(ctx)
	if err != nil {
		return h.fail(c, "Failed to read store status", err)
	}
	return c.JSON(status)
}

// SearchLogs handles POST /v1/logs/search
func (h *QueryHandler) SearchLogs(c *fiber.Ctx) error {
	var req models.LogSearchRequest
	if err := decodeBody(c, &req); err != nil {
		return utils.ErrorResponse(c, err)
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return utils.ErrorResponse(c, err)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	logs, err := h.service.SearchLogs(ctx, req)
	if err != nil {
		return h.fail(c, "Log search failed", err)
	}
	return c.JSON(fiber.Map{"logs": logs})
}

// GetLog handles GET /v1/logs/:id. Stored events carry no addressable id.
func (h *QueryHandler) GetLog(c *fiber.Ctx) error {
	return utils.StatusErrorResponse(c, fiber.StatusNotImplemented, archerr.NotImplemented,
		"Log retrieval by ID not implemented - use search with trace_id filter")
}

// MetricNames handles GET /v1/metrics/names
func (h *QueryHandler) MetricNames(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	names, err := h.service.MetricNames(ctx)
	if err != nil {
		return h.fail(c, "Listing metric names failed", err)
	}
	return c.JSON(fiber.Map{"names": names})
}

// QueryMetrics handles POST /v1/metrics/query
func (h *QueryHandler) QueryMetrics(c *fiber.Ctx) error {
	req := models.MetricQueryRequest{
		Aggregation:     models.DefaultAggregation,
		IntervalSeconds: models.DefaultIntervalSeconds,
	}
	if err := decodeBody(c, &req); err != nil {
		return utils.ErrorResponse(c, err)
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return utils.ErrorResponse(c, err)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	series, err := h.service.QueryMetrics(ctx, req)
	if err != nil {
		return h.fail(c, "Metric query failed", err)
	}
	return c.JSON(fiber.Map{"data": series.Data})
}

func (h *QueryHandler) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

func (h *QueryHandler) fail(c *fiber.Ctx, message string, err error) error {
	fields := map[string]interface{}{
		"path": c.Path(),
		"kind": string(archerr.KindOf(err)),
	}
	log := utils.RequestLogger(c, h.logger, "query_handler")
	if utils.StatusForKind(archerr.KindOf(err)) >= fiber.StatusInternalServerError {
		log.Error(message, err, fields)
	} else {
		log.Warn(message, fields)
	}
	return utils.ErrorResponse(c, err)
}

// decodeBody unmarshals the JSON body onto v, keeping values already set on v
// for absent fields. Typed decode failures such as an unknown severity keep
// their kind.
func decodeBody(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return archerr.New(archerr.InvalidRequest, "request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		if archerr.KindOf(err) != archerr.Internal {
			return err
		}
		return archerr.Wrap(archerr.InvalidRequest, err, "invalid JSON body")
	}
	return nil
}
