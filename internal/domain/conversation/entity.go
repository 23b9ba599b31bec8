package conversation

import (
	"database/sql"
	"time"

	"medilink-chat/internal/domain/identity"
)

// Conversation types
const (
	TypeOneToOne = "one_to_one"
	TypeGroup    = "group"
	TypeSupport  = "support"
)

// Conversation represents the conversations table
type Conversation struct {
	ID   int64  `gorm:"primaryKey"`
	Type string `gorm:"not null"`
	// PairKey is set only for one-to-one conversations; its unique index
	// makes get-or-create for an unordered identity pair race-safe.
	PairKey            sql.NullString `gorm:"uniqueIndex"`
	Title              sql.NullString
	LastMessagePreview sql.NullString
	LastMessageAt      sql.NullTime `gorm:"index"`
	Active             bool         `gorm:"default:true"`
	Archived           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Relationships
	Participants []Participant `gorm:"foreignKey:ConversationID"`
}

// Participant represents the participants table
type Participant struct {
	ID                int64         `gorm:"primaryKey"`
	ConversationID    int64         `gorm:"uniqueIndex:idx_participant_identity"`
	UserID            int64         `gorm:"uniqueIndex:idx_participant_identity"`
	UserRole          identity.Role `gorm:"uniqueIndex:idx_participant_identity;type:varchar(16)"`
	JoinedAt          time.Time
	LeftAt            sql.NullTime
	Active            bool `gorm:"default:true"`
	Muted             bool
	UnreadCount       int64
	LastReadMessageID sql.NullInt64
}

func (p Participant) Identity() identity.Ref {
	return identity.Ref{ID: p.UserID, Role: p.UserRole}
}

func (Conversation) TableName() string {
	return "conversations"
}

func (Participant) TableName() string {
	return "participants"
}
