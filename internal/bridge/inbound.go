package bridge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/domain/message"
	"medilink-chat/internal/events"
	medilink_errors "medilink-chat/pkg/errors"
)

const (
	eventMessageCreated = "chat.message.created"
	eventThreadRead     = "chat.thread.read"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type messageCreatedEvent struct {
	MessageID     string    `json:"message_id"`
	ThreadID      string    `json:"thread_id"`
	SenderID      int64     `json:"sender_id"`
	SenderRole    string    `json:"sender_role"`
	SenderName    string    `json:"sender_name"`
	StaffCategory string    `json:"staff_category"`
	PatientMRN    string    `json:"patient_mrn"`
	Type          string    `json:"type"`
	Content       string    `json:"content"`
	FileURL       string    `json:"file_url"`
	FileName      string    `json:"file_name"`
	FileSize      int64     `json:"file_size"`
	SentAt        time.Time `json:"sent_at"`
}

type threadReadEvent struct {
	ThreadID string `json:"thread_id"`
}

func (b *Bridge) handleEvent(ctx context.Context, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		b.log.Warnf("unparseable CRM event discarded: %v", err)
		return
	}

	switch env.Event {
	case eventMessageCreated:
		var e messageCreatedEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			b.log.Warnf("malformed %s event discarded: %v", env.Event, err)
			return
		}
		if err := b.handleMessageCreated(ctx, e); err != nil {
			b.log.Errorf("%s for thread %s failed: %v", env.Event, e.ThreadID, err)
		}
	case eventThreadRead:
		var e threadReadEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			b.log.Warnf("malformed %s event discarded: %v", env.Event, err)
			return
		}
		if err := b.handleThreadRead(ctx, e); err != nil {
			b.log.Errorf("%s for thread %s failed: %v", env.Event, e.ThreadID, err)
		}
	default:
		b.log.Debugf("ignoring CRM event %q", env.Event)
	}
}

// handleMessageCreated persists an inbound CRM message exactly once and
// pushes it to the patient. Delivery from the CRM is at-least-once; the
// external message id is the dedup key.
func (b *Bridge) handleMessageCreated(ctx context.Context, e messageCreatedEvent) error {
	role := identity.Role(e.SenderRole)
	if !role.CRMBacked() {
		b.log.Debugf("ignoring CRM message from non-CRM role %q", e.SenderRole)
		return nil
	}

	if e.MessageID != "" {
		if _, err := b.msgRepo.GetByExternalID(ctx, e.MessageID); err == nil {
			b.log.Debugf("duplicate inbound message %s discarded", e.MessageID)
			return nil
		} else if !errors.Is(err, medilink_errors.ErrNotFound) {
			return err
		}
	}

	conversationID, err := b.mapper.Parse(e.ThreadID)
	if err != nil {
		b.log.Warnf("inbound message discarded: %v", err)
		return nil
	}

	if e.PatientMRN == "" {
		b.log.Warnf("inbound message for thread %s carries no patient MRN, discarded", e.ThreadID)
		return nil
	}
	patient, err := b.userRepo.GetByMedicalRecordNumber(ctx, e.PatientMRN)
	if err != nil {
		if errors.Is(err, medilink_errors.ErrNotFound) {
			b.log.Warnf("no patient with MRN %s, inbound message for thread %s discarded", e.PatientMRN, e.ThreadID)
			return nil
		}
		return err
	}
	patientRef := identity.Ref{ID: patient.ID, Role: identity.RolePatient}

	// A well-formed thread id can still be stale or point at someone
	// else's conversation. Never persist into one the patient is not in.
	isParticipant, err := b.convRepo.IsActiveParticipant(ctx, conversationID, patientRef)
	if err != nil {
		return err
	}
	if !isParticipant {
		b.log.Warnf("thread %s maps to conversation %d without patient %s, inbound message discarded", e.ThreadID, conversationID, patientRef.Key())
		return nil
	}

	msgType := e.Type
	if msgType == "" || !message.ValidType(msgType) {
		msgType = message.TypeText
	}
	sentAt := e.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	msg := message.Message{
		ConversationID:   conversationID,
		SenderID:         e.SenderID,
		SenderRole:       role,
		Type:             msgType,
		SentAt:           sentAt,
		ExternalThreadID: sql.NullString{String: e.ThreadID, Valid: true},
	}
	if e.Content != "" {
		msg.Content = sql.NullString{String: e.Content, Valid: true}
	}
	if e.FileURL != "" {
		msg.FileURL = sql.NullString{String: e.FileURL, Valid: true}
	}
	if e.FileName != "" {
		msg.FileName = sql.NullString{String: e.FileName, Valid: true}
	}
	if e.FileSize > 0 {
		msg.FileSize = sql.NullInt64{Int64: e.FileSize, Valid: true}
	}
	if e.MessageID != "" {
		msg.ExternalMessageID = sql.NullString{String: e.MessageID, Valid: true}
	}

	if err := b.msgRepo.Create(ctx, &msg); err != nil {
		if errors.Is(err, medilink_errors.ErrAlreadyExists) {
			// Lost a race with a concurrent delivery of the same event.
			b.log.Debugf("duplicate inbound message %s discarded", e.MessageID)
			return nil
		}
		return err
	}

	if err := b.convRepo.UpdateLastMessage(ctx, conversationID, msg.Preview(), msg.SentAt); err != nil {
		b.log.Errorf("last-message cache update for conversation %d failed: %v", conversationID, err)
	}
	if err := b.convRepo.IncrementUnread(ctx, conversationID, msg.Sender()); err != nil {
		b.log.Errorf("unread increment for conversation %d failed: %v", conversationID, err)
	}

	if b.broadcaster != nil {
		b.broadcaster.ToUser(patientRef, events.Event{
			Type:    events.TypeReceiveMessage,
			Payload: msg,
		})
		b.broadcaster.ToUser(patientRef, events.Event{
			Type: events.TypeConversationUpdated,
			Payload: map[string]interface{}{
				"conversation_id": conversationID,
				"preview":         msg.Preview(),
				"last_message_at": msg.SentAt,
			},
		})
	}

	b.wakePatient(ctx, patientRef, e, msg)
	return nil
}

func (b *Bridge) wakePatient(ctx context.Context, patient identity.Ref, e messageCreatedEvent, msg message.Message) {
	if b.notifier == nil {
		return
	}
	if b.presence != nil {
		online, err := b.presence.IsOnline(ctx, patient)
		if err != nil {
			b.log.Warnf("presence check for %s failed: %v", patient.Key(), err)
		} else if online {
			return
		}
	}

	data := map[string]string{
		"conversation_id": fmt.Sprintf("%d", msg.ConversationID),
		"message_id":      fmt.Sprintf("%d", msg.ID),
	}
	if err := b.notifier.Wake(ctx, patient, wakeTitle(e), message.Truncate(msg.Preview(), 80), data); err != nil {
		b.log.Errorf("wake for %s failed: %v", patient.Key(), err)
	}
}

// wakeTitle derives the push title from the sender's role: doctors by
// name, staff by their category.
func wakeTitle(e messageCreatedEvent) string {
	if identity.Role(e.SenderRole) == identity.RoleDoctor {
		if e.SenderName != "" {
			return "Dr. " + e.SenderName
		}
		return "Your doctor"
	}
	if e.StaffCategory != "" {
		return e.StaffCategory
	}
	if e.SenderName != "" {
		return e.SenderName
	}
	return "Care team"
}

// handleThreadRead marks the patient's messages in the thread read when
// the CRM side reads it, and notifies live connections.
func (b *Bridge) handleThreadRead(ctx context.Context, e threadReadEvent) error {
	conversationID, err := b.mapper.Parse(e.ThreadID)
	if err != nil {
		b.log.Warnf("thread read event discarded: %v", err)
		return nil
	}

	ids, err := b.msgRepo.MarkReadBySenderRole(ctx, conversationID, identity.RolePatient)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if b.broadcaster != nil {
		b.broadcaster.ToConversation(conversationID, events.Event{
			Type: events.TypeMessageRead,
			Payload: map[string]interface{}{
				"conversation_id": conversationID,
				"message_ids":     ids,
			},
		})
	}
	return nil
}
