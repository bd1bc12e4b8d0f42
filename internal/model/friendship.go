package model

import (
	"time"
)

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipBlocked  = "blocked"
)

// Friendship is a directed relation row from UserID to FriendID.
// A blocked row in either direction blocks the pair both ways.
type Friendship struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_friendship_pair"`
	FriendID  uint      `gorm:"not null;uniqueIndex:idx_friendship_pair;index"`
	Status    string    `gorm:"type:varchar(32);not null;default:'pending'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Friendship) TableName() string { return "friendship" }
