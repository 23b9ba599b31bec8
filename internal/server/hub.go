package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/events"
	"medilink-chat/internal/services"
)

// PresenceTracker records online/offline transitions for connected users.
type PresenceTracker interface {
	SetOnline(ctx context.Context, u identity.Ref) error
	SetOffline(ctx context.Context, u identity.Ref, lastSeen time.Time) error
}

// Hub maintains the set of active clients, their conversation room
// memberships, and fans events out to them. It implements
// services.Broadcaster.
type Hub struct {
	clients     map[string]map[string]*Client // identity key -> client id -> client
	register    chan *Client
	unregister  chan *Client
	chatService *services.ChatService
	presence    PresenceTracker
	logger      *WebSocketLogger
	mu          sync.RWMutex
	stopChan    chan struct{}
	isRunning   int32
}

// NewHub creates a new Hub
func NewHub(chatService *services.ChatService, presence PresenceTracker) *Hub {
	return &Hub{
		clients:     make(map[string]map[string]*Client),
		register:    make(chan *Client, 256),
		unregister:  make(chan *Client, 256),
		chatService: chatService,
		presence:    presence,
		logger:      NewWebSocketLogger(),
		stopChan:    make(chan struct{}),
	}
}

// Run starts the Hub
func (h *Hub) Run() {
	atomic.StoreInt32(&h.isRunning, 1)
	defer atomic.StoreInt32(&h.isRunning, 0)

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case <-h.stopChan:
			return
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	key := client.identity.Key()

	h.mu.Lock()
	if h.clients[key] == nil {
		h.clients[key] = make(map[string]*Client)
	}
	firstConnection := len(h.clients[key]) == 0
	h.clients[key][client.clientID] = client
	h.mu.Unlock()

	h.logger.Info("client connected", client.identity, client.clientID)

	if client.conn != nil {
		go client.writePump()
		go client.readPump()
	}

	if firstConnection {
		if h.presence != nil {
			if err := h.presence.SetOnline(context.Background(), client.identity); err != nil {
				h.logger.Error("presence online update failed", client.identity, client.clientID, err)
			}
		}
		h.broadcastAll(events.Event{
			Type: events.TypeUserOnline,
			Payload: map[string]interface{}{
				"user": client.identity,
			},
		}, client.clientID)
	}
}

func (h *Hub) handleUnregister(client *Client) {
	key := client.identity.Key()

	h.mu.Lock()
	lastConnection := false
	if userClients, ok := h.clients[key]; ok {
		if _, ok := userClients[client.clientID]; ok {
			delete(userClients, client.clientID)
			client.closeSend()
			if client.conn != nil {
				client.conn.Close()
			}
			if len(userClients) == 0 {
				delete(h.clients, key)
				lastConnection = true
			}
		}
	}
	h.mu.Unlock()

	h.logger.Info("client disconnected", client.identity, client.clientID)

	if lastConnection {
		lastSeen := time.Now()
		if h.presence != nil {
			if err := h.presence.SetOffline(context.Background(), client.identity, lastSeen); err != nil {
				h.logger.Error("presence offline update failed", client.identity, client.clientID, err)
			}
		}
		h.broadcastAll(events.Event{
			Type: events.TypeUserOffline,
			Payload: map[string]interface{}{
				"user":      client.identity,
				"last_seen": lastSeen,
			},
		}, client.clientID)
	}
}

// JoinConversation adds the connection to a conversation room after
// re-checking participancy. A failed join is surfaced to the caller; the
// connection stays open.
func (h *Hub) JoinConversation(ctx context.Context, client *Client, conversationID int64) error {
	if err := h.chatService.EnsureParticipant(ctx, conversationID, client.identity); err != nil {
		return err
	}
	h.mu.Lock()
	client.conversations[conversationID] = true
	h.mu.Unlock()
	return nil
}

// LeaveConversation removes the connection from a conversation room.
func (h *Hub) LeaveConversation(client *Client, conversationID int64) {
	h.mu.Lock()
	delete(client.conversations, conversationID)
	h.mu.Unlock()
}

// ToConversation sends an event to every connection in the conversation's
// room.
func (h *Hub) ToConversation(conversationID int64, event events.Event) {
	h.broadcastConversation(conversationID, event, "")
}

// ToOthersInConversation sends an event to the conversation's room,
// skipping one connection (typically the sender's).
func (h *Hub) ToOthersInConversation(conversationID int64, excludeClientID string, event events.Event) {
	h.broadcastConversation(conversationID, event, excludeClientID)
}

// ToUser sends an event to every live connection of one user.
func (h *Hub) ToUser(u identity.Ref, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients[u.Key()] {
		h.deliver(client, data)
	}
}

func (h *Hub) broadcastConversation(conversationID int64, event events.Event, excludeClientID string) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userClients := range h.clients {
		for _, client := range userClients {
			if client.clientID == excludeClientID {
				continue
			}
			if client.conversations[conversationID] {
				h.deliver(client, data)
			}
		}
	}
}

func (h *Hub) broadcastAll(event events.Event, excludeClientID string) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userClients := range h.clients {
		for _, client := range userClients {
			if client.clientID == excludeClientID {
				continue
			}
			h.deliver(client, data)
		}
	}
}

func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.logger.Warn("client send buffer full", client.identity, client.clientID)
	}
}

// Stop gracefully shuts down the Hub
func (h *Hub) Stop() {
	close(h.stopChan)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, userClients := range h.clients {
		for _, client := range userClients {
			client.closeSend()
			if client.conn != nil {
				client.conn.Close()
			}
		}
	}
	h.clients = make(map[string]map[string]*Client)
}
