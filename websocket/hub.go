package websocket

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/utils"
)

type targeted struct {
	client  *Client
	message models.StreamMessage
}

// ClientGauge receives the subscriber count whenever it changes.
type ClientGauge interface {
	SetTailClients(n int)
}

// Hub fans live tail batches out to connected subscribers. All client
// bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.StreamMessage
	register   chan *Client
	unregister chan *Client
	targeted   chan targeted
	done       chan struct{}

	count  atomic.Int64
	gauge  ClientGauge
	logger *utils.Logger
}

// NewHub creates a new hub. gauge may be nil.
func NewHub(logger *utils.Logger, gauge ClientGauge) *Hub {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan models.StreamMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		targeted:   make(chan targeted, 64),
		done:       make(chan struct{}),
		gauge:      gauge,
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every subscriber's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for client := range h.clients {
			h.drop(client)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.updateCount()
			h.logger.Info("Tail client connected", map[string]interface{}{
				"client_id":     client.ID,
				"total_clients": len(h.clients),
			})

			welcome := models.StreamMessage{
				Type:      models.StreamConnect,
				Data:      map[string]interface{}{"status": "connected", "client_id": client.ID, "filter": client.Filter()},
				Timestamp: time.Now(),
				ClientID:  client.ID,
			}
			select {
			case client.send <- welcome:
			default:
				h.drop(client)
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("Tail client disconnected", map[string]interface{}{
					"client_id":     client.ID,
					"total_clients": len(h.clients),
				})
			}

		case message := <-h.broadcast:
			h.deliver(message)

		case t := <-h.targeted:
			if !h.clients[t.client] {
				continue
			}
			select {
			case t.client.send <- t.message:
			default:
				h.logger.Warn("Tail client send buffer full, reply dropped", map[string]interface{}{
					"client_id": t.client.ID,
					"type":      t.message.Type,
				})
			}
		}
	}
}

func (h *Hub) deliver(message models.StreamMessage) {
	batch, isLogs := message.Data.([]models.LogRecord)

	h.logger.Debug("Broadcasting tail message", map[string]interface{}{
		"type":       message.Type,
		"recipients": len(h.clients),
	})

	for client := range h.clients {
		out := message
		if isLogs {
			filtered := client.Filter().Apply(batch)
			if len(filtered) == 0 {
				continue
			}
			out.Data = filtered
		}
		out.ClientID = client.ID

		select {
		case client.send <- out:
		default:
			h.logger.Warn("Removed unresponsive tail client", map[string]interface{}{
				"client_id": client.ID,
			})
			h.drop(client)
		}
	}
}

// drop must only be called from Run.
func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.updateCount()
}

func (h *Hub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	if h.gauge != nil {
		h.gauge.SetTailClients(len(h.clients))
	}
}

// BroadcastToAll queues a message for every subscriber. Log batches
// ([]models.LogRecord) are narrowed per client by its filter.
func (h *Hub) BroadcastToAll(msgType string, data interface{}) {
	message := models.StreamMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Tail broadcast channel is full, message dropped", map[string]interface{}{
			"type": msgType,
		})
	}
}

func (h *Hub) sendTo(client *Client, message models.StreamMessage) {
	select {
	case h.targeted <- targeted{client: client, message: message}:
	case <-h.done:
	default:
		h.logger.Warn("Tail reply queue is full, message dropped", map[string]interface{}{
			"client_id": client.ID,
			"type":      message.Type,
		})
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// RegisterClient adds client to the hub. It returns false once the hub has stopped.
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient removes client from the hub.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Done is closed after Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
