package service

import (
	"time"

	"im-social/pkg/response"
)

// Event types pushed to broadcast groups
const (
	EventNewMessage       = "new_message"
	EventMessageSent      = "message_sent"
	EventMessageDelivered = "message_delivered"
	EventMessageRead      = "message_read"
	EventMessageEdited    = "message_edited"
	EventMessagesRecalled = "messages_recalled"
	EventMessagesDeleted  = "messages_deleted"
	EventMessageReacted   = "message_reacted"
	EventMessageUnreacted = "message_unreacted"
	EventMessagePinned    = "message_pinned"
	EventMessageUnpinned  = "message_unpinned"
	EventGroupMessage     = "group_message"
	EventGroupMessageSent = "group_message_sent"
	EventGroupMessageRead = "group_message_read"
	EventGroupEdited      = "group_message_edited"
	EventGroupRecalled    = "group_messages_recalled"
	EventGroupDeleted     = "group_messages_deleted"
	EventGroupReacted     = "group_message_reacted"
	EventGroupUnreacted   = "group_message_unreacted"
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
	EventCallOffer        = "call_offer"
	EventCallAnswer       = "call_answer"
	EventCallCandidate    = "call_candidate"
	EventCallEnd          = "call_end"
	EventNoteShared       = "note_shared"
)

type messagePayload struct {
	Message *response.MessageResponse `json:"message"`
}

type deliveryPayload struct {
	MessageIDs []uint `json:"message_ids"`
	ReceiverID uint   `json:"receiver_id"`
	Status     string `json:"status"`
}

type readPayload struct {
	MessageIDs []uint    `json:"message_ids"`
	ReaderID   uint      `json:"reader_id"`
	GroupID    *uint     `json:"group_id,omitempty"`
	ReadAt     time.Time `json:"read_at"`
}

type reactionPayload struct {
	MessageID uint   `json:"message_id"`
	GroupID   *uint  `json:"group_id,omitempty"`
	UserID    uint   `json:"user_id"`
	Type      string `json:"type"`
	Count     int    `json:"count,omitempty"`
}

type removalPayload struct {
	MessageIDs []uint `json:"message_ids"`
	GroupID    *uint  `json:"group_id,omitempty"`
	ActorID    uint   `json:"actor_id"`
	UserID     uint   `json:"user_id,omitempty"` // target of a one-user delete
	Scope      string `json:"scope"`
	ByAdmin    bool   `json:"by_admin,omitempty"`
}

type presencePayload struct {
	UserID   uint       `json:"user_id"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type pinPayload struct {
	MessageID uint `json:"message_id"`
	UserID    uint `json:"user_id"`
}
