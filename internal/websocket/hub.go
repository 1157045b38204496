// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/metrics"
)

// Message is the envelope for everything pushed to dashboards.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// CommandHandler executes commands received from dashboards.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd *data.Command) error
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte  // Channel for messages to broadcast
	register   chan *Client // Channel for registering clients
	unregister chan *Client // Channel for unregistering clients
	done       chan struct{}
	mu         sync.RWMutex

	commands CommandHandler
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		metrics:    m,
		log:        log,
	}
}

// SetCommandHandler must be called before Run.
func (h *Hub) SetCommandHandler(ch CommandHandler) {
	h.commands = ch
}

// Run serves registrations and broadcasts until ctx is cancelled, then closes
// every client's send channel.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.ClientConnected()
			h.log.Info("websocket client registered", "client", client.ID, "remote", client.remoteAddr())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.dropLocked(client)
				h.log.Info("websocket client unregistered", "client", client.ID)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Assume client is blocked or gone, unregister
					h.log.Warn("websocket client send buffer full, removing", "client", client.ID)
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client)
	close(client.Send)
	h.metrics.ClientDisconnected()
}

// Register hands a new client to the hub. It reports false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends {"type": kind, "payload": payload} to all clients.
func (h *Hub) Broadcast(kind string, payload any) error {
	b, err := Encode(kind, payload)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- b:
		return nil
	case <-h.done:
		return fmt.Errorf("hub stopped, dropping %s", kind)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) dispatch(ctx context.Context, client *Client, raw []byte) {
	cmd, err := data.ParseCommand(raw)
	if err != nil {
		h.log.Warn("dropping websocket command", "client", client.ID, "err", err)
		return
	}
	if h.commands == nil {
		h.log.Warn("no command handler, ignoring command", "type", cmd.Type)
		return
	}
	if err := h.commands.HandleCommand(ctx, cmd); err != nil {
		h.log.Warn("websocket command failed", "client", client.ID, "type", cmd.Type, "err", err)
	}
}

// Encode marshals one envelope.
func Encode(kind string, payload any) ([]byte, error) {
	b, err := json.Marshal(Message{Type: kind, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", kind, err)
	}
	return b, nil
}
