package model

import "time"

const (
	GroupRoleOwner  = "owner"
	GroupRoleAdmin  = "admin"
	GroupRoleMember = "member"
)

// Group chat
type Group struct {
	ID             uint   `gorm:"primaryKey"`
	Name           string `gorm:"type:varchar(128);not null"`
	OwnerID        uint   `gorm:"not null;index"`
	OnlyAdminsPost bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Group) TableName() string { return "chat_group" }

// GroupMember links a user to a group
type GroupMember struct {
	ID       uint   `gorm:"primaryKey"`
	GroupID  uint   `gorm:"not null;uniqueIndex:idx_group_member"`
	UserID   uint   `gorm:"not null;uniqueIndex:idx_group_member;index"`
	Role     string `gorm:"type:varchar(16);not null;default:'member'"`
	Muted    bool   `gorm:"not null;default:false"`
	JoinedAt time.Time
}

func (GroupMember) TableName() string { return "group_member" }

// CanPost reports whether this member may send into g
func (m *GroupMember) CanPost(g *Group) bool {
	if m == nil || m.Muted {
		return false
	}
	if g.OnlyAdminsPost {
		return m.Role == GroupRoleOwner || m.Role == GroupRoleAdmin
	}
	return true
}

// AllModels lists every table for AutoMigrate
func AllModels() []interface{} {
	return []interface{}{
		&User{}, &Friendship{}, &Group{}, &GroupMember{},
		&Message{}, &MessageHide{}, &ReadReceipt{}, &Reaction{}, &PinnedMessage{},
	}
}
