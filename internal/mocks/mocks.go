package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"medilink-chat/internal/domain/conversation"
	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/domain/message"
	"medilink-chat/internal/domain/user"
	"medilink-chat/internal/events"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) Create(ctx context.Context, c *conversation.Conversation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) GetByID(ctx context.Context, id int64) (conversation.Conversation, error) {
	args := m.Called(ctx, id)
	var conv conversation.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(conversation.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetByPairKey(ctx context.Context, pairKey string) (conversation.Conversation, error) {
	args := m.Called(ctx, pairKey)
	var conv conversation.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(conversation.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetUserConversations(ctx context.Context, u identity.Ref, page, limit int) ([]conversation.Conversation, int64, error) {
	args := m.Called(ctx, u, page, limit)
	var items []conversation.Conversation
	if val := args.Get(0); val != nil {
		items = val.([]conversation.Conversation)
	}
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *ConversationRepositoryMock) UpdateLastMessage(ctx context.Context, id int64, preview string, at time.Time) error {
	args := m.Called(ctx, id, preview, at)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) ActiveConversationIDs(ctx context.Context, since time.Time) ([]int64, error) {
	args := m.Called(ctx, since)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *ConversationRepositoryMock) GetParticipants(ctx context.Context, conversationID int64) ([]conversation.Participant, error) {
	args := m.Called(ctx, conversationID)
	var items []conversation.Participant
	if val := args.Get(0); val != nil {
		items = val.([]conversation.Participant)
	}
	return items, args.Error(1)
}

func (m *ConversationRepositoryMock) GetParticipant(ctx context.Context, conversationID int64, u identity.Ref) (conversation.Participant, error) {
	args := m.Called(ctx, conversationID, u)
	var p conversation.Participant
	if val := args.Get(0); val != nil {
		p = val.(conversation.Participant)
	}
	return p, args.Error(1)
}

func (m *ConversationRepositoryMock) IsActiveParticipant(ctx context.Context, conversationID int64, u identity.Ref) (bool, error) {
	args := m.Called(ctx, conversationID, u)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) IncrementUnread(ctx context.Context, conversationID int64, except identity.Ref) error {
	args := m.Called(ctx, conversationID, except)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) ResetUnread(ctx context.Context, conversationID int64, u identity.Ref, lastReadMessageID int64) error {
	args := m.Called(ctx, conversationID, u, lastReadMessageID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg *message.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) GetByID(ctx context.Context, id int64) (message.Message, error) {
	args := m.Called(ctx, id)
	var msg message.Message
	if val := args.Get(0); val != nil {
		msg = val.(message.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetByExternalID(ctx context.Context, externalMessageID string) (message.Message, error) {
	args := m.Called(ctx, externalMessageID)
	var msg message.Message
	if val := args.Get(0); val != nil {
		msg = val.(message.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetConversationMessages(ctx context.Context, conversationID int64, page, limit int) ([]message.Message, int64, error) {
	args := m.Called(ctx, conversationID, page, limit)
	var items []message.Message
	if val := args.Get(0); val != nil {
		items = val.([]message.Message)
	}
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, conversationID int64, ids []int64) ([]int64, error) {
	args := m.Called(ctx, conversationID, ids)
	var updated []int64
	if val := args.Get(0); val != nil {
		updated = val.([]int64)
	}
	return updated, args.Error(1)
}

func (m *MessageRepositoryMock) MarkReadBySenderRole(ctx context.Context, conversationID int64, role identity.Role) ([]int64, error) {
	args := m.Called(ctx, conversationID, role)
	var updated []int64
	if val := args.Get(0); val != nil {
		updated = val.([]int64)
	}
	return updated, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, id int64) (user.User, error) {
	args := m.Called(ctx, id)
	var u user.User
	if val := args.Get(0); val != nil {
		u = val.(user.User)
	}
	return u, args.Error(1)
}

func (m *UserRepositoryMock) GetByMedicalRecordNumber(ctx context.Context, mrn string) (user.User, error) {
	args := m.Called(ctx, mrn)
	var u user.User
	if val := args.Get(0); val != nil {
		u = val.(user.User)
	}
	return u, args.Error(1)
}

func (m *UserRepositoryMock) UpdateOnlineStatus(ctx context.Context, id int64, online bool, at time.Time) error {
	args := m.Called(ctx, id, online, at)
	return args.Error(0)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) ToConversation(conversationID int64, event events.Event) {
	m.Called(conversationID, event)
}

func (m *BroadcasterMock) ToUser(u identity.Ref, event events.Event) {
	m.Called(u, event)
}

func (m *BroadcasterMock) ToOthersInConversation(conversationID int64, excludeClientID string, event events.Event) {
	m.Called(conversationID, excludeClientID, event)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Wake(ctx context.Context, u identity.Ref, title, body string, data map[string]string) error {
	args := m.Called(ctx, u, title, body, data)
	return args.Error(0)
}

type ForwarderMock struct {
	mock.Mock
}

func (m *ForwarderMock) ForwardMessage(ctx context.Context, msg message.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type PresenceMock struct {
	mock.Mock
}

func (m *PresenceMock) IsOnline(ctx context.Context, u identity.Ref) (bool, error) {
	args := m.Called(ctx, u)
	return args.Bool(0), args.Error(1)
}
