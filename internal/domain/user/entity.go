package user

import (
	"database/sql"
	"time"
)

// User is the minimal patient projection the chat core needs: the bridge
// resolves inbound CRM events to patients by medical record number, and
// presence tracks online state. Profile CRUD lives elsewhere.
type User struct {
	ID                  int64 `gorm:"primaryKey"`
	FullName            string
	MedicalRecordNumber sql.NullString `gorm:"uniqueIndex"`
	PhoneNumber         sql.NullString
	IsOnline            bool
	LastSeenAt          sql.NullTime
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (User) TableName() string {
	return "users"
}
