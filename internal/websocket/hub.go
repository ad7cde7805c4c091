package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/playful-minds/progression/internal/domain"
)

// Message types
const (
	MessageTypeBoardUpdate    = "board_update"
	MessageTypeProgressUpdate = "progress_update"
	MessageTypeSubscribe      = "subscribe"
	MessageTypeUnsubscribe    = "unsubscribe"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
	MessageTypeError          = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type        string      `json:"type"`
	ActivityKey string      `json:"activity_key,omitempty"`
	Data        interface{} `json:"data,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// BoardUpdate contains highscore board data for broadcast
type BoardUpdate struct {
	ActivityKey string                  `json:"activity_key"`
	Entries     []domain.HighscoreEntry `json:"entries"`
}

// BoardSource supplies the current board for an activity. A fresh subscriber
// is sent a snapshot from it instead of waiting for the next accepted score.
type BoardSource interface {
	Load(ctx context.Context, activityKey string) ([]domain.HighscoreEntry, error)
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by activity key
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound messages from clients
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Board source for subscriber snapshots
	boards BoardSource

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client      *Client
	activityKey string
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
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetBoardSource installs the source used for subscriber board snapshots.
func (h *Hub) SetBoardSource(source BoardSource) {
	h.mu.Lock()
	h.boards = source
	h.mu.Unlock()
}

func (h *Hub) boardSource() BoardSource {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.boards
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
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
				// Remove from all activity subscriptions
				for key, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, key)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.activityKey]; !ok {
				h.clients[req.activityKey] = make(map[*Client]bool)
			}
			h.clients[req.activityKey][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "activity_key", req.activityKey)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.activityKey]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.activityKey)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "activity_key", req.activityKey)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to all subscribed clients
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	// If message has an activity key, only send to subscribed clients
	if message.ActivityKey != "" {
		if clients, ok := h.clients[message.ActivityKey]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					// Client's buffer is full, skip
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		// Broadcast to all clients
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// BroadcastBoardUpdate sends a highscore board update to all subscribed clients
func (h *Hub) BroadcastBoardUpdate(activityKey string, entries []domain.HighscoreEntry) {
	message := &Message{
		Type:        MessageTypeBoardUpdate,
		ActivityKey: activityKey,
		Data: BoardUpdate{
			ActivityKey: activityKey,
			Entries:     entries,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastProgressUpdate sends a level/points change notification
func (h *Hub) BroadcastProgressUpdate(activityKey string, progress domain.Progress) {
	message := &Message{
		Type:        MessageTypeProgressUpdate,
		ActivityKey: activityKey,
		Data:        progress,
		Timestamp:   time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to an activity subscription
func (h *Hub) Subscribe(client *Client, activityKey string) {
	h.subscribe <- &subscriptionRequest{
		client:      client,
		activityKey: activityKey,
	}
}

// Unsubscribe removes a client from an activity subscription
func (h *Hub) Unsubscribe(client *Client, activityKey string) {
	h.unsubscribe <- &subscriptionRequest{
		client:      client,
		activityKey: activityKey,
	}
}

// GetSubscriberCount returns the number of subscribers for an activity
func (h *Hub) GetSubscriberCount(activityKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[activityKey]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
