package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"medilink-chat/internal/domain/conversation"
	"medilink-chat/internal/domain/identity"
	medilink_errors "medilink-chat/pkg/errors"

	"gorm.io/gorm"
)

type PostgresConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

func (r *PostgresConversationRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	res := r.db.WithContext(ctx).Create(c)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return medilink_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id int64) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Conversation{}, medilink_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) GetByPairKey(ctx context.Context, pairKey string) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("pair_key = ?", pairKey).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Conversation{}, medilink_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) GetUserConversations(ctx context.Context, u identity.Ref, page, limit int) ([]conversation.Conversation, int64, error) {
	var conversations []conversation.Conversation
	var total int64

	subQuery := r.db.Model(&conversation.Participant{}).
		Select("conversation_id").
		Where("user_id = ? AND user_role = ? AND active = ?", u.ID, u.Role, true)

	q := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id IN (?)", subQuery).
		Where("active = ?", true)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Preload("Participants").
		Order("last_message_at DESC NULLS LAST").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&conversations).Error
	if err != nil {
		return nil, 0, err
	}
	return conversations, total, nil
}

func (r *PostgresConversationRepository) UpdateLastMessage(ctx context.Context, id int64, preview string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_message_preview": preview,
			"last_message_at":      at,
		}).Error
}

func (r *PostgresConversationRepository) ActiveConversationIDs(ctx context.Context, since time.Time) ([]int64, error) {
	var ids []int64
	crmParticipant := r.db.Model(&conversation.Participant{}).
		Select("1").
		Where("participants.conversation_id = conversations.id").
		Where("user_role IN ?", []identity.Role{identity.RoleDoctor, identity.RoleStaff})

	err := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("active = ? AND last_message_at >= ?", true, since).
		Where("EXISTS (?)", crmParticipant).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresConversationRepository) GetParticipants(ctx context.Context, conversationID int64) ([]conversation.Participant, error) {
	var participants []conversation.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Find(&participants).Error
	return participants, err
}

func (r *PostgresConversationRepository) GetParticipant(ctx context.Context, conversationID int64, u identity.Ref) (conversation.Participant, error) {
	var p conversation.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND user_role = ?", conversationID, u.ID, u.Role).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Participant{}, medilink_errors.ErrNotFound
		}
		return conversation.Participant{}, err
	}
	return p, nil
}

func (r *PostgresConversationRepository) IsActiveParticipant(ctx context.Context, conversationID int64, u identity.Ref) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&conversation.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND user_role = ? AND active = ?", conversationID, u.ID, u.Role, true).
		Count(&count).Error
	return count > 0, err
}

func (r *PostgresConversationRepository) IncrementUnread(ctx context.Context, conversationID int64, except identity.Ref) error {
	return r.db.WithContext(ctx).
		Model(&conversation.Participant{}).
		Where("conversation_id = ? AND active = ?", conversationID, true).
		Where("NOT (user_id = ? AND user_role = ?)", except.ID, except.Role).
		UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error
}

func (r *PostgresConversationRepository) ResetUnread(ctx context.Context, conversationID int64, u identity.Ref, lastReadMessageID int64) error {
	updates := map[string]interface{}{"unread_count": 0}
	if lastReadMessageID > 0 {
		updates["last_read_message_id"] = sql.NullInt64{Int64: lastReadMessageID, Valid: true}
	}
	return r.db.WithContext(ctx).
		Model(&conversation.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND user_role = ?", conversationID, u.ID, u.Role).
		Updates(updates).Error
}
