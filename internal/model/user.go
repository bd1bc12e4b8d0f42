package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User account.
// Username and email are unique; only the bcrypt hash of the password is stored.
// Permissions is a comma separated list such as "chat.monitor,chat.message.*".
type User struct {
	ID                    uint           `gorm:"primaryKey"`
	Username              string         `gorm:"type:varchar(64);not null;uniqueIndex"`
	Email                 string         `gorm:"type:varchar(128);index"`
	PasswordHash          string         `gorm:"type:varchar(255);not null"`
	Nickname              string         `gorm:"type:varchar(64)"`
	Avatar                string         `gorm:"type:varchar(255)"`
	Role                  string         `gorm:"type:varchar(16);not null;default:'user';index"`
	Permissions           string         `gorm:"type:varchar(512)"`
	IsActive              bool           `gorm:"not null"`
	ReadReceiptsEnabled   bool           `gorm:"not null"`
	AllowStrangerMessages bool           `gorm:"not null"`
	LastSeen              *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             gorm.DeletedAt `gorm:"index"`
}

func (User) TableName() string { return "user" }

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// PermissionList splits Permissions into trimmed, non-empty entries
func (u *User) PermissionList() []string {
	if u == nil || u.Permissions == "" {
		return nil
	}
	parts := strings.Split(u.Permissions, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
