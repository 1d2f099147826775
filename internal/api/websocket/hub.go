// Package websocket re-broadcasts status records ingested by the status
// repository to connected dashboard clients. It is a pure observer: it
// never influences scheduling and has no opinion about task retries or
// admission.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/corewright/taskrunner/internal/logger"
	"github.com/corewright/taskrunner/internal/metrics"
	"github.com/corewright/taskrunner/internal/status"
)

var _ status.TestObserver = (*Hub)(nil)

// record is the shape broadcast to dashboard clients: {id, status,
// result, elapsed}, repurposing the teacher's events.Event wire shape for
// status transitions instead of queue lifecycle events.
type record struct {
	ID      string  `json:"id"`
	Status  string  `json:"status"`
	Result  string  `json:"result,omitempty"`
	Elapsed float64 `json:"elapsed,omitempty"`
}

// Hub manages WebSocket clients and broadcasts status records. It
// implements status.TestObserver so a repository can be wired to notify
// it directly, with no subscription filtering: a record's own status
// field is all a dashboard needs to filter client-side.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopCh:     make(chan struct{}),
	}
}

// Run starts the hub's register/unregister/broadcast loop.
func (h *Hub) Run(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ctx.Done():
				h.closeAllClients()
				return
			case <-h.stopCh:
				h.closeAllClients()
				return
			case client := <-h.register:
				h.mu.Lock()
				h.clients[client] = true
				h.mu.Unlock()
				metrics.SetWebSocketConnections(float64(h.ClientCount()))
				logger.Debug().Str("client_id", client.ID).Msg("client registered")

			case client := <-h.unregister:
				h.mu.Lock()
				if _, ok := h.clients[client]; ok {
					delete(h.clients, client)
					close(client.send)
				}
				h.mu.Unlock()
				metrics.SetWebSocketConnections(float64(h.ClientCount()))
				logger.Debug().Str("client_id", client.ID).Msg("client unregistered")

			case data := <-h.broadcast:
				h.send(data)
			}
		}
	}()

	logger.Info().Msg("status websocket hub started")
}

// Stop stops the hub.
func (h *Hub) Stop() {
	close(h.stopCh)
	h.wg.Wait()
	logger.Info().Msg("status websocket hub stopped")
}

// Register registers a client with the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister unregisters a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnTestStart implements status.TestObserver.
func (h *Hub) OnTestStart(id, outputDir string) {
	h.publish(record{ID: id, Status: "started"})
}

// OnTestEnd implements status.TestObserver.
func (h *Hub) OnTestEnd(id, result string, elapsed float64) {
	h.publish(record{ID: id, Status: "finished", Result: result, Elapsed: elapsed})
}

func (h *Hub) publish(r record) {
	data, err := json.Marshal(r)
	if err != nil {
		logger.Error().Err(err).Msg("failed to serialize status record for broadcast")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logger.Warn().Msg("broadcast channel full, dropping status record")
	}
}

func (h *Hub) send(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
			metrics.RecordWebSocketMessage("status")
		default:
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
