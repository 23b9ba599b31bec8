package repository

import (
	"context"
	"time"

	"medilink-chat/internal/domain/conversation"
	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/domain/message"
	"medilink-chat/internal/domain/user"
)

type ConversationRepository interface {
	Create(ctx context.Context, c *conversation.Conversation) error
	GetByID(ctx context.Context, id int64) (conversation.Conversation, error)
	GetByPairKey(ctx context.Context, pairKey string) (conversation.Conversation, error)
	GetUserConversations(ctx context.Context, u identity.Ref, page, limit int) ([]conversation.Conversation, int64, error)
	UpdateLastMessage(ctx context.Context, id int64, preview string, at time.Time) error

	// ActiveConversationIDs returns ids of active conversations with a
	// CRM-backed participant touched since the given time. Used by the
	// bridge's rejoin and rescan passes.
	ActiveConversationIDs(ctx context.Context, since time.Time) ([]int64, error)

	GetParticipants(ctx context.Context, conversationID int64) ([]conversation.Participant, error)
	GetParticipant(ctx context.Context, conversationID int64, u identity.Ref) (conversation.Participant, error)
	IsActiveParticipant(ctx context.Context, conversationID int64, u identity.Ref) (bool, error)
	IncrementUnread(ctx context.Context, conversationID int64, except identity.Ref) error
	ResetUnread(ctx context.Context, conversationID int64, u identity.Ref, lastReadMessageID int64) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id int64) (message.Message, error)
	GetByExternalID(ctx context.Context, externalMessageID string) (message.Message, error)
	GetConversationMessages(ctx context.Context, conversationID int64, page, limit int) ([]message.Message, int64, error)

	MarkDelivered(ctx context.Context, id int64) error
	// MarkRead flags the given ids read; ids not belonging to the
	// conversation are left untouched. Returns the ids actually updated.
	MarkRead(ctx context.Context, conversationID int64, ids []int64) ([]int64, error)
	// MarkReadBySenderRole flags every unread message in the conversation
	// sent by the given role. Used when the CRM side reads a thread.
	MarkReadBySenderRole(ctx context.Context, conversationID int64, role identity.Role) ([]int64, error)
	SoftDelete(ctx context.Context, id int64) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (user.User, error)
	GetByMedicalRecordNumber(ctx context.Context, mrn string) (user.User, error)
	UpdateOnlineStatus(ctx context.Context, id int64, online bool, at time.Time) error
}
