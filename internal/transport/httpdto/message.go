package httpdto

import (
	"time"

	"medilink-chat/internal/domain/message"
)

type SendMessageRequest struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	FileURL   string `json:"file_url"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	ReplyToID int64  `json:"reply_to_id"`
}

type MarkReadRequest struct {
	MessageIDs []int64 `json:"message_ids" binding:"required"`
}

type MessageDTO struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	SenderRole     string    `json:"sender_role"`
	Type           string    `json:"type"`
	Content        string    `json:"content,omitempty"`
	FileURL        string    `json:"file_url,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	FileSize       int64     `json:"file_size,omitempty"`
	SentAt         time.Time `json:"sent_at"`
	Delivered      bool      `json:"delivered"`
	Read           bool      `json:"read"`
	Deleted        bool      `json:"deleted"`
	ReplyToID      int64     `json:"reply_to_id,omitempty"`
}

type ListMessagesResponse struct {
	Messages []MessageDTO `json:"messages"`
	Total    int64        `json:"total"`
}

// FromMessage maps the entity. Soft-deleted messages keep their slot in
// history but carry no content.
func FromMessage(m message.Message) MessageDTO {
	dto := MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderRole:     string(m.SenderRole),
		Type:           m.Type,
		SentAt:         m.SentAt,
		Delivered:      m.Delivered,
		Read:           m.Read,
		Deleted:        m.Deleted,
	}
	if m.Deleted {
		return dto
	}
	if m.Content.Valid {
		dto.Content = m.Content.String
	}
	if m.FileURL.Valid {
		dto.FileURL = m.FileURL.String
	}
	if m.FileName.Valid {
		dto.FileName = m.FileName.String
	}
	if m.FileSize.Valid {
		dto.FileSize = m.FileSize.Int64
	}
	if m.ReplyToID.Valid {
		dto.ReplyToID = m.ReplyToID.Int64
	}
	return dto
}

func FromMessageSlice(items []message.Message) []MessageDTO {
	out := make([]MessageDTO, 0, len(items))
	for _, m := range items {
		out = append(out, FromMessage(m))
	}
	return out
}
