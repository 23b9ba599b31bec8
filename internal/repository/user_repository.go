package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"medilink-chat/internal/domain/user"
	medilink_errors "medilink-chat/pkg/errors"

	"gorm.io/gorm"
)

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user.User{}, medilink_errors.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *PostgresUserRepository) GetByMedicalRecordNumber(ctx context.Context, mrn string) (user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).Where("medical_record_number = ?", mrn).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user.User{}, medilink_errors.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *PostgresUserRepository) UpdateOnlineStatus(ctx context.Context, id int64, online bool, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_online":    online,
			"last_seen_at": sql.NullTime{Time: at, Valid: true},
		}).Error
}
