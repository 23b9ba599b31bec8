package message

import (
	"database/sql"
	"time"

	"medilink-chat/internal/domain/identity"
)

// Message types
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeFile  = "file"
	TypeVoice = "voice"
	TypeVideo = "video"
)

func ValidType(t string) bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeVoice, TypeVideo:
		return true
	}
	return false
}

// Message represents the messages table. Messages are immutable once
// sent except for the delivery flags and the soft-delete flag.
type Message struct {
	ID             int64         `gorm:"primaryKey"`
	ConversationID int64         `gorm:"index:idx_messages_conversation"`
	SenderID       int64         `gorm:"not null"`
	SenderRole     identity.Role `gorm:"type:varchar(16)"`
	Type           string        `gorm:"not null"`
	Content        sql.NullString
	FileURL        sql.NullString
	FileName       sql.NullString
	FileSize       sql.NullInt64
	SentAt         time.Time `gorm:"index:idx_messages_conversation"`
	Delivered      bool
	Read           bool
	Deleted        bool
	ReplyToID      sql.NullInt64

	// External correlation. ExternalMessageID is the idempotency key for
	// inbound bridge writes; its unique index is what makes replays of the
	// same CRM event a no-op.
	ExternalMessageID sql.NullString `gorm:"uniqueIndex"`
	ExternalThreadID  sql.NullString
}

func (m Message) Sender() identity.Ref {
	return identity.Ref{ID: m.SenderID, Role: m.SenderRole}
}

// Preview returns the text used for the conversation's last-message cache
// and notification bodies.
func (m Message) Preview() string {
	if m.Content.Valid && m.Content.String != "" {
		return m.Content.String
	}
	switch m.Type {
	case TypeImage:
		return "[image]"
	case TypeFile:
		return "[file]"
	case TypeVoice:
		return "[voice message]"
	case TypeVideo:
		return "[video]"
	}
	return ""
}

// Truncate cuts s to at most max runes, appending an ellipsis when cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

func (Message) TableName() string {
	return "messages"
}
