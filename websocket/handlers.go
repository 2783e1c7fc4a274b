package websocket

import (
	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const filterKey = "tail_filter"

// Upgrade rejects plain HTTP requests and parses the initial filter from
// the min_severity and service query parameters before the handshake.
func Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return utils.StatusErrorResponse(c, fiber.StatusUpgradeRequired, archerr.InvalidRequest, "WebSocket upgrade required")
	}

	filter, err := filterFromQuery(c)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	c.Locals(filterKey, filter)
	return c.Next()
}

func filterFromQuery(c *fiber.Ctx) (models.TailFilter, error) {
	filter := models.TailFilter{Service: c.Query("service")}
	if name := c.Query("min_severity"); name != "" {
		sev, err := models.ParseSeverity(name)
		if err != nil {
			return models.TailFilter{}, err
		}
		filter.MinSeverity = &sev
	}
	return filter, nil
}

// Handler serves /ws/tail subscribers on hub.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		filter, _ := conn.Locals(filterKey).(models.TailFilter)
		client := NewClient(conn, hub, filter)

		if !hub.RegisterClient(client) {
			conn.Close()
			return
		}

		hub.logger.Info("New tail connection established", map[string]interface{}{
			"client_id":   client.ID,
			"remote_addr": conn.RemoteAddr().String(),
			"service":     filter.Service,
		})

		go client.WritePump()
		client.ReadPump()
	})
}
