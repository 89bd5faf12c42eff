package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bancho-server/internal/domain"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message types
const (
	MessageTypeScore        = "score"
	MessageTypeAnnouncement = "announcement"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string    `json:"type"`
	Mode      string    `json:"mode,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub maintains the set of live feed clients and fans score and
// announcement messages out to them
type Hub struct {
	// Subscribed clients by mode name
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	mode   string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest),
		unsubscribe: make(chan *subscriptionRequest),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for mode, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, mode)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.mode]; !ok {
				h.clients[req.mode] = make(map[*Client]bool)
			}
			h.clients[req.mode][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "mode", req.mode)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.mode]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.mode)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "mode", req.mode)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a mode message to that mode's subscribers and
// anything else to every client
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	targets := h.allClients
	if message.Mode != "" {
		targets = h.clients[message.Mode]
	}
	for client := range targets {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type)
	}
}

// BroadcastScore pushes an accepted play to the subscribers of its mode
func (h *Hub) BroadcastScore(ev domain.ScoreEvent) {
	h.enqueue(&Message{
		Type:      MessageTypeScore,
		Mode:      ev.Mode,
		Data:      ev,
		Timestamp: time.Now(),
	})
}

// PublishScore lets the hub serve as the score feed when no broker is configured
func (h *Hub) PublishScore(_ context.Context, ev domain.ScoreEvent) error {
	h.BroadcastScore(ev)
	return nil
}

// BroadcastAnnouncement pushes a server announcement to every client
func (h *Hub) BroadcastAnnouncement(a domain.Announcement) {
	h.enqueue(&Message{
		Type:      MessageTypeAnnouncement,
		Data:      a,
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a mode's score feed. It returns once the hub has applied it.
func (h *Hub) Subscribe(client *Client, mode string) {
	h.subscribe <- &subscriptionRequest{client: client, mode: mode}
}

// Unsubscribe removes a client from a mode's score feed
func (h *Hub) Unsubscribe(client *Client, mode string) {
	h.unsubscribe <- &subscriptionRequest{client: client, mode: mode}
}

// GetSubscriberCount returns the number of subscribers for a mode
func (h *Hub) GetSubscriberCount(mode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[mode])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
