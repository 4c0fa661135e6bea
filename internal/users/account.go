package users

import (
	"strings"
	"time"
)

// Account is a registered owner of a remote collection.
type Account struct {
	ID           string    `gorm:"column:id;primaryKey;size:36;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing accounts.
func (Account) TableName() string {
	return "accounts"
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
