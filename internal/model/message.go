package model

import (
	"time"
)

// Session types
const (
	SessionDirect = 1
	SessionGroup  = 2
)

// Delivery states, in order
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Message types
const (
	MsgTypeText     = "text"
	MsgTypeImage    = "image"
	MsgTypeFile     = "file"
	MsgTypeVideo    = "video"
	MsgTypeRecalled = "recalled"
	MsgTypeSystem   = "system"
)

// Message is a direct (ReceiverID set) or group (GroupID set) message.
// Status only moves forward. IsDeletedForAll never reverts.
// IsRead is the legacy group flag, true after the first member read.
type Message struct {
	ID               uint       `gorm:"primaryKey"`
	SessionType      int        `gorm:"not null;default:1;index:idx_message_conv,priority:1"`
	SenderID         uint       `gorm:"not null;index"`
	ReceiverID       uint       `gorm:"index:idx_message_receiver_status,priority:1"`
	GroupID          *uint      `gorm:"index"`
	Content          string     `gorm:"type:text;not null"`
	MsgType          string     `gorm:"type:varchar(16);not null;default:'text'"`
	Status           string     `gorm:"type:varchar(16);not null;default:'sent';index:idx_message_receiver_status,priority:2"`
	IsRead           bool       `gorm:"not null;default:false"`
	IsDeletedForAll  bool       `gorm:"not null;default:false"`
	IsRecalled       bool       `gorm:"not null;default:false"`
	ReplyToMessageID *uint
	EditedAt         *time.Time
	CreatedAt        time.Time `gorm:"index:idx_message_conv,priority:2"`
	UpdatedAt        time.Time
}

func (Message) TableName() string { return "message" }

func (m *Message) IsGroup() bool { return m.SessionType == SessionGroup && m.GroupID != nil }

// HasAttachment reports whether Content is a resource reference
func (m *Message) HasAttachment() bool {
	switch m.MsgType {
	case MsgTypeImage, MsgTypeFile, MsgTypeVideo:
		return m.Content != ""
	}
	return false
}

// StatusRank orders delivery states; unknown states rank lowest
func StatusRank(status string) int {
	switch status {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// ValidMsgType reports whether t may be used when sending
func ValidMsgType(t string) bool {
	switch t {
	case MsgTypeText, MsgTypeImage, MsgTypeFile, MsgTypeVideo, MsgTypeSystem:
		return true
	}
	return false
}

// MessageHide marks a message deleted for one user. Rows are only inserted.
type MessageHide struct {
	MessageID uint `gorm:"primaryKey;autoIncrement:false"`
	UserID    uint `gorm:"primaryKey;autoIncrement:false;index"`
	HiddenAt  time.Time
}

func (MessageHide) TableName() string { return "message_hide" }

// ReadReceipt records that a user read a message, once, earliest time wins.
// Direct and group messages share the table.
type ReadReceipt struct {
	ID        uint      `gorm:"primaryKey"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_receipt_msg_user"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_receipt_msg_user;index"`
	ReadAt    time.Time `gorm:"not null"`
}

func (ReadReceipt) TableName() string { return "read_receipt" }

// Reaction is one reaction type held by a user on a message
type Reaction struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_reaction_user_msg_type"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_reaction_user_msg_type;index"`
	Type      string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_reaction_user_msg_type"`
	Count     int       `gorm:"not null;default:1"`
	ReactedAt time.Time `gorm:"not null"`
}

func (Reaction) TableName() string { return "reaction" }

// PinnedMessage is a per-user pin
type PinnedMessage struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_pin_user_msg"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_pin_user_msg;index"`
	PinnedAt  time.Time `gorm:"not null"`
}

func (PinnedMessage) TableName() string { return "pinned_message" }
