package users

import (
	"strings"
	"time"
)

// Status values for a user profile. Deletion is logical: the row stays
// so the pubkey/email bindings remain unique.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// User binds an author public key to its registered email address. Both
// bindings are immutable once created.
type User struct {
	Pubkey    string    `gorm:"column:pubkey;primaryKey;size:64;not null"`
	Email     string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_users_email"`
	Status    string    `gorm:"column:status;size:16;not null;default:active"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
