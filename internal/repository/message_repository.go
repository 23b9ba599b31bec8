package repository

import (
	"context"
	"errors"

	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/domain/message"
	medilink_errors "medilink-chat/pkg/errors"

	"gorm.io/gorm"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	res := r.db.WithContext(ctx).Create(m)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return medilink_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id int64) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, medilink_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) GetByExternalID(ctx context.Context, externalMessageID string) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Where("external_message_id = ?", externalMessageID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, medilink_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) GetConversationMessages(ctx context.Context, conversationID int64, page, limit int) ([]message.Message, int64, error) {
	var messages []message.Message
	var total int64

	q := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("conversation_id = ? AND deleted = ?", conversationID, false)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (r *PostgresMessageRepository) MarkDelivered(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ?", id).
		Update("delivered", true).Error
}

func (r *PostgresMessageRepository) MarkRead(ctx context.Context, conversationID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var updated []int64
	err := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("conversation_id = ? AND id IN ? AND read = ?", conversationID, ids, false).
		Pluck("id", &updated).Error
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, nil
	}

	err = r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id IN ?", updated).
		Updates(map[string]interface{}{"delivered": true, "read": true}).Error
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresMessageRepository) MarkReadBySenderRole(ctx context.Context, conversationID int64, role identity.Role) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("conversation_id = ? AND sender_role = ? AND read = ?", conversationID, role, false).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"delivered": true, "read": true}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresMessageRepository) SoftDelete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ?", id).
		Update("deleted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return medilink_errors.ErrNotFound
	}
	return nil
}
