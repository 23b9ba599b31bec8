package services

import (
	"context"

	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/domain/message"
	"medilink-chat/internal/events"
)

// Broadcaster fans events out to live connections. Implemented by the
// websocket hub.
type Broadcaster interface {
	ToConversation(conversationID int64, event events.Event)
	ToUser(u identity.Ref, event events.Event)
	ToOthersInConversation(conversationID int64, excludeClientID string, event events.Event)
}

// Notifier wakes offline recipients through the push pipeline. Calls are
// fire-and-forget from the chat core's perspective.
type Notifier interface {
	Wake(ctx context.Context, u identity.Ref, title, body string, data map[string]string) error
}

// Forwarder syncs locally-sent messages to the external case-management
// system. Best-effort: a failure never rolls back the local message.
type Forwarder interface {
	ForwardMessage(ctx context.Context, msg message.Message) error
}

// Presence answers whether a user has a live connection right now.
type Presence interface {
	IsOnline(ctx context.Context, u identity.Ref) (bool, error)
}
