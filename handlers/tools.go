package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/archives-observability/archives/services"
	"github.com/archives-observability/archives/tools"
	"github.com/archives-observability/archives/utils"
	"github.com/gofiber/fiber/v2"
)

// ToolRequest is the POST /mcp body.
type ToolRequest struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// ToolHandler serves the tool surface.
type ToolHandler struct {
	registry *tools.Registry
	service  services.QueryServiceInterface
	logger   *utils.Logger
	timeout  time.Duration
}

// NewToolHandler creates a new tool handler instance.
func NewToolHandler(registry *tools.Registry, service services.QueryServiceInterface, timeout time.Duration) *ToolHandler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &ToolHandler{
		registry: registry,
		service:  service,
		logger:   utils.GetLogger(),
		timeout:  timeout,
	}
}

// Invoke handles POST /mcp. Tool failures travel inside the envelope with
// status 200; only an undecodable body is rejected with 400.
func (h *ToolHandler) Invoke(c *fiber.Ctx) error {
	req, err := decodeToolRequest(c.Body())
	if err != nil {
		utils.RequestLogger(c, h.logger, "tool_handler").Warn("Rejected undecodable tool request", map[string]interface{}{
			"error": err.Error(),
		})
		return utils.BadRequestResponse(c, "body must be a JSON object {\"tool\": string, \"params\": object}")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	log := utils.RequestLogger(c, h.logger, "tool_handler")
	log.Info("Tool invocation", map[string]interface{}{"tool": req.Tool})

	env := h.registry.Dispatch(ctx, req.Tool, req.Params)
	return c.JSON(env)
}

// Catalog handles GET /tools
func (h *ToolHandler) Catalog(c *fiber.Ctx) error {
	catalog := h.registry.Catalog()
	return c.JSON(fiber.Map{"tools": catalog, "count": len(catalog)})
}

// Health handles GET /health
func (h *ToolHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{Status: "unhealthy"})
	}
	return c.JSON(HealthResponse{Status: "healthy", StoreConnected: true})
}

// Ping handles GET /ping without touching the store.
func (h *ToolHandler) Ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"pong": true})
}

// decodeToolRequest keeps numbers as json.Number so integer parameters are
// never routed through float64.
func decodeToolRequest(body []byte) (ToolRequest, error) {
	var req ToolRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return ToolRequest{}, err
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	return req, nil
}
