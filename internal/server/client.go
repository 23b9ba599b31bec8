package server

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/events"
	"medilink-chat/internal/services"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Rate limits per minute
type RateLimits struct {
	MaxTypingEvents int
	MaxReadReceipts int
	MaxPingMessages int
}

var DefaultRateLimits = RateLimits{
	MaxTypingEvents: 60,
	MaxReadReceipts: 120,
	MaxPingMessages: 60,
}

// ClientRateLimiter tracks rate limits per client
type ClientRateLimiter struct {
	typingTokens      int
	readReceiptTokens int
	pingTokens        int
	lastRefill        time.Time
	mu                sync.Mutex
}

func NewClientRateLimiter() *ClientRateLimiter {
	return &ClientRateLimiter{
		typingTokens:      DefaultRateLimits.MaxTypingEvents,
		readReceiptTokens: DefaultRateLimits.MaxReadReceipts,
		pingTokens:        DefaultRateLimits.MaxPingMessages,
		lastRefill:        time.Now(),
	}
}

func (rl *ClientRateLimiter) Allow(msgType string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastRefill) >= time.Minute {
		rl.typingTokens = DefaultRateLimits.MaxTypingEvents
		rl.readReceiptTokens = DefaultRateLimits.MaxReadReceipts
		rl.pingTokens = DefaultRateLimits.MaxPingMessages
		rl.lastRefill = time.Now()
	}

	switch msgType {
	case "typing":
		if rl.typingTokens > 0 {
			rl.typingTokens--
			return true
		}
	case "read", "delivered":
		if rl.readReceiptTokens > 0 {
			rl.readReceiptTokens--
			return true
		}
	case "ping":
		if rl.pingTokens > 0 {
			rl.pingTokens--
			return true
		}
	default:
		return true
	}
	return false
}

// Client represents a single WebSocket connection
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	identity      identity.Ref
	clientID      string
	conversations map[int64]bool
	rateLimiter   *ClientRateLimiter
	connectedAt   time.Time
	lastActivity  time.Time
	logger        *WebSocketLogger

	sendMu     sync.Mutex // guards sendClosed and the close of send
	sendClosed bool
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type           string  `json:"type"`
	ConversationID int64   `json:"conversation_id,omitempty"`
	MessageID      int64   `json:"message_id,omitempty"`
	MessageIDs     []int64 `json:"message_ids,omitempty"`
	MessageType    string  `json:"message_type,omitempty"`
	Content        string  `json:"content,omitempty"`
	FileURL        string  `json:"file_url,omitempty"`
	FileName       string  `json:"file_name,omitempty"`
	FileSize       int64   `json:"file_size,omitempty"`
	ReplyToID      int64   `json:"reply_to_id,omitempty"`
	Typing         bool    `json:"typing,omitempty"`
}

func NewClient(hub *Hub, conn *websocket.Conn, u identity.Ref, clientID string, logger *WebSocketLogger) *Client {
	now := time.Now()
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		identity:      u,
		clientID:      clientID,
		conversations: make(map[int64]bool),
		rateLimiter:   NewClientRateLimiter(),
		connectedAt:   now,
		lastActivity:  now,
		logger:        logger,
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.lastActivity = time.Now()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket unexpected close", c.identity, c.clientID, err)
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.lastActivity = time.Now()

		if err := c.handleMessage(message); err != nil {
			c.logger.Error("websocket handle message failed", c.identity, c.clientID, err)
		}
	}
}

func (c *Client) handleMessage(raw []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	if !c.rateLimiter.Allow(msg.Type) {
		c.logger.Warn("rate limit exceeded", c.identity, c.clientID, zap.String("msg_type", msg.Type))
		return nil
	}

	switch msg.Type {
	case "join":
		return c.handleJoin(msg)
	case "leave":
		c.hub.LeaveConversation(c, msg.ConversationID)
		return nil
	case "send":
		return c.handleSend(msg)
	case "typing":
		return c.handleTyping(msg)
	case "delivered":
		return c.handleDelivered(msg)
	case "read":
		return c.handleRead(msg)
	case "ping":
		c.sendEvent(events.Event{Type: events.TypePong})
		return nil
	default:
		c.logger.Warn("unknown message type", c.identity, c.clientID, zap.String("msg_type", msg.Type))
		return nil
	}
}

func (c *Client) handleJoin(msg ClientMessage) error {
	err := c.hub.JoinConversation(context.Background(), c, msg.ConversationID)
	if err != nil {
		// Surface the rejection on the connection but keep it open.
		c.sendEvent(events.Event{
			Type: events.TypeError,
			Payload: map[string]interface{}{
				"op":              "join",
				"conversation_id": msg.ConversationID,
				"reason":          "not a participant",
			},
		})
	}
	return err
}

func (c *Client) handleSend(msg ClientMessage) error {
	_, err := c.hub.chatService.Send(context.Background(), c.identity, msg.ConversationID, services.SendPayload{
		Type:               msg.MessageType,
		Content:            msg.Content,
		FileURL:            msg.FileURL,
		FileName:           msg.FileName,
		FileSize:           msg.FileSize,
		ReplyToID:          msg.ReplyToID,
		SenderConnectionID: c.clientID,
	})
	if err != nil {
		c.sendEvent(events.Event{
			Type: events.TypeError,
			Payload: map[string]interface{}{
				"op":              "send",
				"conversation_id": msg.ConversationID,
				"reason":          "message rejected",
			},
		})
	}
	return err
}

func (c *Client) handleTyping(msg ClientMessage) error {
	// Fire-and-forget, never persisted. Only rooms this connection joined
	// (participancy re-checked on join) can be signalled.
	c.hub.mu.RLock()
	joined := c.conversations[msg.ConversationID]
	c.hub.mu.RUnlock()
	if !joined {
		return nil
	}

	c.hub.ToOthersInConversation(msg.ConversationID, c.clientID, events.Event{
		Type: events.TypeUserTyping,
		Payload: map[string]interface{}{
			"conversation_id": msg.ConversationID,
			"user":            c.identity,
			"typing":          msg.Typing,
		},
	})
	return nil
}

func (c *Client) handleDelivered(msg ClientMessage) error {
	ids := msg.MessageIDs
	if msg.MessageID > 0 {
		ids = append(ids, msg.MessageID)
	}
	for _, id := range ids {
		if err := c.hub.chatService.MarkDelivered(context.Background(), id, c.identity); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) handleRead(msg ClientMessage) error {
	ids := msg.MessageIDs
	if msg.MessageID > 0 {
		ids = append(ids, msg.MessageID)
	}
	return c.hub.chatService.MarkRead(context.Background(), msg.ConversationID, c.identity, ids)
}

func (c *Client) sendEvent(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	// The read pump calls this concurrently with hub shutdown; a write
	// after closeSend would panic, so the closed check and the send share
	// one critical section.
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// closeSend closes the send channel exactly once. Only the hub's
// unregister and stop paths call it.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			if time.Since(c.lastActivity) > pongWait*2 {
				c.logger.Info("client idle timeout", c.identity, c.clientID)
				return
			}
		}
	}
}
