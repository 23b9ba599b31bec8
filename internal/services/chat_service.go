package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"medilink-chat/internal/domain/conversation"
	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/domain/message"
	"medilink-chat/internal/events"
	"medilink-chat/internal/repository"
	medilink_errors "medilink-chat/pkg/errors"
	"medilink-chat/pkg/logger"
)

const forwardTimeout = 15 * time.Second

type ChatService struct {
	convRepo    repository.ConversationRepository
	msgRepo     repository.MessageRepository
	broadcaster Broadcaster
	notifier    Notifier
	forwarder   Forwarder
	presence    Presence
	log         *logger.Logger
}

func NewChatService(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository, notifier Notifier, presence Presence, log *logger.Logger) *ChatService {
	return &ChatService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		notifier: notifier,
		presence: presence,
		log:      log,
	}
}

// AttachBroadcaster wires the hub in after construction; the hub needs the
// service for join validation, so the two cannot be built in one pass.
func (s *ChatService) AttachBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// AttachForwarder wires the CRM forwarder in once the bridge is built.
func (s *ChatService) AttachForwarder(f Forwarder) {
	s.forwarder = f
}

// SendPayload is the client-supplied part of a message.
type SendPayload struct {
	Type      string
	Content   string
	FileURL   string
	FileName  string
	FileSize  int64
	ReplyToID int64

	// SenderConnectionID, when set, is excluded from the room broadcast so
	// the sending connection does not receive its own message back.
	SenderConnectionID string
}

// EnsureParticipant errors with ErrNotAParticipant unless u is an active
// participant of the conversation. A missing conversation reports the same
// error so callers cannot probe for conversation ids.
func (s *ChatService) EnsureParticipant(ctx context.Context, conversationID int64, u identity.Ref) error {
	ok, err := s.convRepo.IsActiveParticipant(ctx, conversationID, u)
	if err != nil {
		return fmt.Errorf("participant check: %w", err)
	}
	if !ok {
		return medilink_errors.ErrNotAParticipant
	}
	return nil
}

func (s *ChatService) ListConversations(ctx context.Context, u identity.Ref, page, limit int) ([]conversation.Conversation, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.convRepo.GetUserConversations(ctx, u, page, limit)
}

func (s *ChatService) Messages(ctx context.Context, conversationID int64, u identity.Ref, page, limit int) ([]message.Message, int64, error) {
	if err := s.EnsureParticipant(ctx, conversationID, u); err != nil {
		return nil, 0, err
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.msgRepo.GetConversationMessages(ctx, conversationID, page, limit)
}

// GetOrCreateDirect returns the one-to-one conversation between a and b,
// creating it if absent. Safe under concurrent calls from both sides: the
// pair-key unique constraint arbitrates, not a read-then-write.
func (s *ChatService) GetOrCreateDirect(ctx context.Context, a, b identity.Ref, initialText string) (conversation.Conversation, bool, error) {
	if a.Equal(b) || !a.Role.Valid() || !b.Role.Valid() {
		return conversation.Conversation{}, false, medilink_errors.ErrInvalidInput
	}

	pairKey := identity.PairKey(a, b)
	existing, err := s.convRepo.GetByPairKey(ctx, pairKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, medilink_errors.ErrNotFound) {
		return conversation.Conversation{}, false, err
	}

	now := time.Now()
	conv := conversation.Conversation{
		Type:      conversation.TypeOneToOne,
		PairKey:   sql.NullString{String: pairKey, Valid: true},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []conversation.Participant{
			{UserID: a.ID, UserRole: a.Role, JoinedAt: now, Active: true},
			{UserID: b.ID, UserRole: b.Role, JoinedAt: now, Active: true},
		},
	}

	if err := s.convRepo.Create(ctx, &conv); err != nil {
		if errors.Is(err, medilink_errors.ErrAlreadyExists) {
			// Lost the race to the other side; theirs wins.
			existing, err := s.convRepo.GetByPairKey(ctx, pairKey)
			return existing, false, err
		}
		return conversation.Conversation{}, false, err
	}

	if initialText != "" {
		if _, err := s.Send(ctx, a, conv.ID, SendPayload{Type: message.TypeText, Content: initialText}); err != nil {
			s.log.Errorf("initial message for conversation %d failed: %v", conv.ID, err)
		}
	}
	return conv, true, nil
}

// Send persists a message from sender into the conversation, updates the
// last-message cache and unread counters, fans the message out to live
// connections, wakes offline recipients, and forwards to the CRM when the
// counterpart is CRM-backed.
func (s *ChatService) Send(ctx context.Context, sender identity.Ref, conversationID int64, p SendPayload) (message.Message, error) {
	if err := s.EnsureParticipant(ctx, conversationID, sender); err != nil {
		return message.Message{}, err
	}

	if p.Type == "" {
		p.Type = message.TypeText
	}
	if !message.ValidType(p.Type) {
		return message.Message{}, medilink_errors.ErrInvalidInput
	}
	if p.Type == message.TypeText && p.Content == "" {
		return message.Message{}, medilink_errors.ErrInvalidInput
	}
	if p.Type != message.TypeText && p.FileURL == "" {
		return message.Message{}, medilink_errors.ErrInvalidInput
	}

	msg := message.Message{
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderRole:     sender.Role,
		Type:           p.Type,
		Content:        nullString(p.Content),
		FileURL:        nullString(p.FileURL),
		FileName:       nullString(p.FileName),
		SentAt:         time.Now(),
	}
	if p.FileSize > 0 {
		msg.FileSize = sql.NullInt64{Int64: p.FileSize, Valid: true}
	}
	if p.ReplyToID > 0 {
		msg.ReplyToID = sql.NullInt64{Int64: p.ReplyToID, Valid: true}
	}

	if err := s.msgRepo.Create(ctx, &msg); err != nil {
		return message.Message{}, err
	}

	if err := s.convRepo.UpdateLastMessage(ctx, conversationID, msg.Preview(), msg.SentAt); err != nil {
		s.log.Errorf("last-message cache update for conversation %d failed: %v", conversationID, err)
	}
	if err := s.convRepo.IncrementUnread(ctx, conversationID, sender); err != nil {
		s.log.Errorf("unread increment for conversation %d failed: %v", conversationID, err)
	}

	participants, err := s.convRepo.GetParticipants(ctx, conversationID)
	if err != nil {
		s.log.Errorf("participant fetch for conversation %d failed: %v", conversationID, err)
	}
	s.fanOut(ctx, msg, participants, p.SenderConnectionID)

	if s.forwarder != nil && hasCRMCounterpart(participants, sender) {
		go func(m message.Message) {
			fctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
			defer cancel()
			if err := s.forwarder.ForwardMessage(fctx, m); err != nil {
				s.log.Errorf("CRM forward for message %d failed: %v", m.ID, err)
			}
		}(msg)
	}

	return msg, nil
}

// MarkDelivered sets the delivered flag once. A delivery ack from the
// sender itself is a no-op, as is a repeat ack.
func (s *ChatService) MarkDelivered(ctx context.Context, messageID int64, by identity.Ref) error {
	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Sender().Equal(by) {
		return nil
	}
	if err := s.EnsureParticipant(ctx, msg.ConversationID, by); err != nil {
		return err
	}
	if msg.Delivered {
		return nil
	}
	if err := s.msgRepo.MarkDelivered(ctx, messageID); err != nil {
		return err
	}
	if s.broadcaster != nil {
		s.broadcaster.ToConversation(msg.ConversationID, events.Event{
			Type: events.TypeMessageDelivered,
			Payload: map[string]interface{}{
				"conversation_id": msg.ConversationID,
				"message_ids":     []int64{messageID},
				"by":              by,
			},
		})
	}
	return nil
}

// MarkRead flags the given message ids read, resets the reader's unread
// counter and advances their last-read pointer. Ids outside the
// conversation are ignored.
func (s *ChatService) MarkRead(ctx context.Context, conversationID int64, by identity.Ref, messageIDs []int64) error {
	if err := s.EnsureParticipant(ctx, conversationID, by); err != nil {
		return err
	}

	updated, err := s.msgRepo.MarkRead(ctx, conversationID, messageIDs)
	if err != nil {
		return err
	}

	var lastRead int64
	for _, id := range updated {
		if id > lastRead {
			lastRead = id
		}
	}
	if err := s.convRepo.ResetUnread(ctx, conversationID, by, lastRead); err != nil {
		return err
	}

	if s.broadcaster != nil {
		if len(updated) > 0 {
			s.broadcaster.ToConversation(conversationID, events.Event{
				Type: events.TypeMessageRead,
				Payload: map[string]interface{}{
					"conversation_id": conversationID,
					"message_ids":     updated,
					"by":              by,
				},
			})
		}
		s.broadcaster.ToUser(by, events.Event{
			Type: events.TypeUnreadCountUpdated,
			Payload: map[string]interface{}{
				"conversation_id": conversationID,
				"unread_count":    0,
			},
		})
	}
	return nil
}

// Delete soft-deletes a message. Only the original sender may delete.
func (s *ChatService) Delete(ctx context.Context, messageID int64, by identity.Ref) error {
	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if !msg.Sender().Equal(by) {
		return medilink_errors.ErrForbidden
	}
	return s.msgRepo.SoftDelete(ctx, messageID)
}

func (s *ChatService) fanOut(ctx context.Context, msg message.Message, participants []conversation.Participant, excludeConnectionID string) {
	if s.broadcaster != nil {
		s.broadcaster.ToOthersInConversation(msg.ConversationID, excludeConnectionID, events.Event{
			Type:    events.TypeReceiveMessage,
			Payload: msg,
		})
		s.broadcaster.ToConversation(msg.ConversationID, events.Event{
			Type: events.TypeConversationUpdated,
			Payload: map[string]interface{}{
				"conversation_id": msg.ConversationID,
				"preview":         msg.Preview(),
				"last_message_at": msg.SentAt,
			},
		})
	}

	sender := msg.Sender()
	for _, p := range participants {
		if !p.Active || p.Identity().Equal(sender) {
			continue
		}
		if s.broadcaster != nil {
			s.broadcaster.ToUser(p.Identity(), events.Event{
				Type: events.TypeUnreadCountUpdated,
				Payload: map[string]interface{}{
					"conversation_id": msg.ConversationID,
					"unread_count":    p.UnreadCount,
				},
			})
		}
		// CRM-backed recipients are reached through the bridge, not push.
		if p.UserRole.CRMBacked() || p.Muted {
			continue
		}
		s.wakeIfOffline(ctx, p.Identity(), msg)
	}
}

func (s *ChatService) wakeIfOffline(ctx context.Context, recipient identity.Ref, msg message.Message) {
	if s.notifier == nil {
		return
	}
	if s.presence != nil {
		online, err := s.presence.IsOnline(ctx, recipient)
		if err != nil {
			s.log.Warnf("presence check for %s failed: %v", recipient.Key(), err)
		} else if online {
			return
		}
	}
	title := "New message"
	body := message.Truncate(msg.Preview(), 80)
	data := map[string]string{
		"conversation_id": fmt.Sprintf("%d", msg.ConversationID),
		"message_id":      fmt.Sprintf("%d", msg.ID),
	}
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Wake(nctx, recipient, title, body, data); err != nil {
			s.log.Errorf("wake for %s failed: %v", recipient.Key(), err)
		}
	}()
}

func hasCRMCounterpart(participants []conversation.Participant, sender identity.Ref) bool {
	for _, p := range participants {
		if p.Active && !p.Identity().Equal(sender) && p.UserRole.CRMBacked() {
			return true
		}
	}
	return false
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
