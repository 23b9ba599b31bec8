package httpdto

import (
	"time"

	"medilink-chat/internal/domain/conversation"
	"medilink-chat/internal/domain/identity"
)

type GetOrCreateDirectRequest struct {
	PeerID         int64  `json:"peer_id" binding:"required"`
	PeerRole       string `json:"peer_role" binding:"required"`
	InitialMessage string `json:"initial_message"`
}

type ParticipantDTO struct {
	UserID      int64      `json:"user_id"`
	UserRole    string     `json:"user_role"`
	JoinedAt    time.Time  `json:"joined_at"`
	Active      bool       `json:"active"`
	Muted       bool       `json:"muted"`
	UnreadCount int64      `json:"unread_count"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
}

type ConversationDTO struct {
	ID                 int64            `json:"id"`
	Type               string           `json:"type"`
	Title              string           `json:"title,omitempty"`
	LastMessagePreview string           `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time       `json:"last_message_at,omitempty"`
	Archived           bool             `json:"archived"`
	UnreadCount        int64            `json:"unread_count"`
	CreatedAt          time.Time        `json:"created_at"`
	Participants       []ParticipantDTO `json:"participants,omitempty"`
}

type ListConversationsResponse struct {
	Conversations []ConversationDTO `json:"conversations"`
	Total         int64             `json:"total"`
}

type GetOrCreateDirectResponse struct {
	Conversation ConversationDTO `json:"conversation"`
	Created      bool            `json:"created"`
}

// FromConversation maps the entity for one viewer: the unread count shown
// is the viewer's own, not anyone else's.
func FromConversation(c conversation.Conversation, viewer identity.Ref) ConversationDTO {
	dto := ConversationDTO{
		ID:        c.ID,
		Type:      c.Type,
		Archived:  c.Archived,
		CreatedAt: c.CreatedAt,
	}
	if c.Title.Valid {
		dto.Title = c.Title.String
	}
	if c.LastMessagePreview.Valid {
		dto.LastMessagePreview = c.LastMessagePreview.String
	}
	if c.LastMessageAt.Valid {
		t := c.LastMessageAt.Time
		dto.LastMessageAt = &t
	}
	for _, p := range c.Participants {
		if p.Identity().Equal(viewer) {
			dto.UnreadCount = p.UnreadCount
		}
		dto.Participants = append(dto.Participants, FromParticipant(p))
	}
	return dto
}

func FromParticipant(p conversation.Participant) ParticipantDTO {
	dto := ParticipantDTO{
		UserID:      p.UserID,
		UserRole:    string(p.UserRole),
		JoinedAt:    p.JoinedAt,
		Active:      p.Active,
		Muted:       p.Muted,
		UnreadCount: p.UnreadCount,
	}
	if p.LeftAt.Valid {
		t := p.LeftAt.Time
		dto.LeftAt = &t
	}
	return dto
}

func FromConversationSlice(items []conversation.Conversation, viewer identity.Ref) []ConversationDTO {
	out := make([]ConversationDTO, 0, len(items))
	for _, c := range items {
		out = append(out, FromConversation(c, viewer))
	}
	return out
}
