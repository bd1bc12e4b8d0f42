package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"im-social/internal/model"
	"im-social/internal/repository"
	"im-social/pkg/apperr"
	"im-social/pkg/bus"
	"im-social/pkg/logger"
	"im-social/pkg/response"

	"go.uber.org/zap"
)

const (
	defaultMaxContentLength = 4000
	defaultPageSize         = 20
	maxPageSize             = 100
)

// SendMessageInput addresses either ReceiverID or GroupID
type SendMessageInput struct {
	SenderID         uint
	ReceiverID       uint
	GroupID          uint
	Content          string
	MsgType          string
	ReplyToMessageID *uint
}

// MessageService sends, edits, lists and pins messages
type MessageService struct {
	messages    *repository.MessageRepository
	users       *repository.UserRepository
	groups      *repository.GroupRepository
	friendships *repository.FriendshipRepository
	presence    OnlineChecker
	bus         Publisher
	conv        conversations
	maxContent  int
	now         Clock
}

// NewMessageService creates the message service. maxContent <= 0 keeps the default limit.
func NewMessageService(
	messages *repository.MessageRepository,
	users *repository.UserRepository,
	groups *repository.GroupRepository,
	friendships *repository.FriendshipRepository,
	presence OnlineChecker,
	publisher Publisher,
	maxContent int,
) *MessageService {
	if maxContent <= 0 {
		maxContent = defaultMaxContentLength
	}
	return &MessageService{
		messages:    messages,
		users:       users,
		groups:      groups,
		friendships: friendships,
		presence:    presence,
		bus:         publisher,
		conv:        conversations{groups: groups},
		maxContent:  maxContent,
		now:         time.Now,
	}
}

func (s *MessageService) validateContent(origin, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.Validation(origin, "content is required")
	}
	if utf8.RuneCountInString(content) > s.maxContent {
		return "", apperr.Validation(origin, "content longer than %d characters", s.maxContent)
	}
	return content, nil
}

// SendMessage stores a direct or group message and pushes it. A direct
// message is delivered at once when the receiver is online.
func (s *MessageService) SendMessage(ctx context.Context, in SendMessageInput) (*model.Message, error) {
	const origin = "message.send"

	content, err := s.validateContent(origin, in.Content)
	if err != nil {
		return nil, err
	}
	msgType := in.MsgType
	if msgType == "" {
		msgType = model.MsgTypeText
	}
	if !model.ValidMsgType(msgType) {
		return nil, apperr.Validation(origin, "unsupported message type %q", msgType)
	}
	if (in.ReceiverID == 0) == (in.GroupID == 0) {
		return nil, apperr.Validation(origin, "exactly one of receiver_id and group_id is required")
	}

	message := &model.Message{
		SenderID:         in.SenderID,
		Content:          content,
		MsgType:          msgType,
		Status:           model.StatusSent,
		ReplyToMessageID: in.ReplyToMessageID,
	}

	var members []uint
	if in.ReceiverID != 0 {
		if err := s.authorizeDirect(ctx, origin, in.SenderID, in.ReceiverID); err != nil {
			return nil, err
		}
		message.SessionType = model.SessionDirect
		message.ReceiverID = in.ReceiverID
		if s.presence.IsOnline(in.ReceiverID) {
			message.Status = model.StatusDelivered
		}
	} else {
		if err := s.authorizeGroup(ctx, origin, in.SenderID, in.GroupID); err != nil {
			return nil, err
		}
		gid := in.GroupID
		message.SessionType = model.SessionGroup
		message.GroupID = &gid
		if members, err = s.groups.MemberIDs(ctx, gid); err != nil {
			return nil, storeErr(origin, err)
		}
	}

	if in.ReplyToMessageID != nil {
		if err := s.checkReply(ctx, origin, message, *in.ReplyToMessageID); err != nil {
			return nil, err
		}
	}

	if err := s.messages.Create(ctx, message); err != nil {
		return nil, storeErr(origin, err)
	}
	logger.Info("message sent",
		zap.Uint("message_id", message.ID),
		zap.Uint("sender_id", message.SenderID),
		zap.String("status", message.Status),
	)

	payload := messagePayload{Message: response.FilterMessageInfo(message)}
	if message.IsGroup() {
		recipients := make([]uint, 0, len(members))
		for _, id := range members {
			if id != message.SenderID {
				recipients = append(recipients, id)
			}
		}
		s.bus.Publish(bus.Event{Type: EventGroupMessage, Data: payload}, recipients...)
		s.bus.Publish(bus.Event{Type: EventGroupMessageSent, Data: payload}, message.SenderID)
		s.bus.PublishAdmin(bus.Event{Type: EventGroupMessage, Data: payload})
		return message, nil
	}

	s.bus.Publish(bus.Event{Type: EventNewMessage, Data: payload}, message.ReceiverID)
	s.bus.Publish(bus.Event{Type: EventMessageSent, Data: payload}, message.SenderID)
	if message.Status == model.StatusDelivered {
		s.bus.Publish(bus.Event{Type: EventMessageDelivered, Data: deliveryPayload{
			MessageIDs: []uint{message.ID},
			ReceiverID: message.ReceiverID,
			Status:     model.StatusDelivered,
		}}, message.SenderID)
	}
	s.bus.PublishAdmin(bus.Event{Type: EventNewMessage, Data: payload})
	return message, nil
}

func (s *MessageService) authorizeDirect(ctx context.Context, origin string, senderID, receiverID uint) error {
	if senderID == receiverID {
		return apperr.Validation(origin, "cannot send a message to yourself")
	}
	receiver, err := s.users.GetByID(ctx, receiverID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(origin, "receiver %d not found", receiverID)
	}
	if err != nil {
		return storeErr(origin, err)
	}
	if !receiver.IsActive {
		return apperr.NotFound(origin, "receiver %d not found", receiverID)
	}

	blocked, err := s.friendships.IsBlocked(ctx, senderID, receiverID)
	if err != nil {
		return storeErr(origin, err)
	}
	if blocked {
		return apperr.Forbidden(origin, "messaging between these users is blocked")
	}

	if !receiver.AllowStrangerMessages {
		friends, err := s.friendships.AreFriends(ctx, senderID, receiverID)
		if err != nil {
			return storeErr(origin, err)
		}
		if !friends {
			return apperr.Forbidden(origin, "receiver only accepts messages from friends")
		}
	}
	return nil
}

func (s *MessageService) authorizeGroup(ctx context.Context, origin string, senderID, groupID uint) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(origin, "group %d not found", groupID)
	}
	if err != nil {
		return storeErr(origin, err)
	}
	member, err := s.groups.GetMember(ctx, groupID, senderID)
	if err != nil {
		return storeErr(origin, err)
	}
	if member == nil {
		return apperr.Forbidden(origin, "not a member of group %d", groupID)
	}
	if !member.CanPost(group) {
		return apperr.Forbidden(origin, "not allowed to post in group %d", groupID)
	}
	return nil
}

// checkReply requires the reply target to live in the same conversation
func (s *MessageService) checkReply(ctx context.Context, origin string, message *model.Message, replyID uint) error {
	target, err := s.messages.GetByID(ctx, replyID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(origin, "reply target %d not found", replyID)
	}
	if err != nil {
		return storeErr(origin, err)
	}
	if keyOf(target) != keyOf(message) || target.SessionType != message.SessionType {
		return apperr.NotFound(origin, "reply target %d not found in this conversation", replyID)
	}
	return nil
}

// EditMessage replaces the text of a message the user sent
func (s *MessageService) EditMessage(ctx context.Context, userID, messageID uint, content string) (*model.Message, error) {
	const origin = "message.edit"

	content, err := s.validateContent(origin, content)
	if err != nil {
		return nil, err
	}
	m, err := loadVisible(ctx, s.messages, s.conv, origin, messageID, userID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != userID {
		return nil, apperr.Forbidden(origin, "only the sender can edit message %d", messageID)
	}
	if m.MsgType != model.MsgTypeText {
		return nil, apperr.Validation(origin, "only text messages can be edited")
	}
	if m.IsDeletedForAll {
		return nil, apperr.Validation(origin, "message %d was recalled", messageID)
	}

	at := s.now()
	ok, err := s.messages.UpdateContent(ctx, m.ID, content, at)
	if err != nil {
		return nil, storeErr(origin, err)
	}
	if !ok {
		return nil, apperr.Validation(origin, "message %d was recalled", messageID)
	}
	m.Content = content
	m.EditedAt = &at

	participants, err := s.conv.participants(ctx, m)
	if err != nil {
		logger.Warn("edit fan-out skipped", zap.Uint("message_id", m.ID), zap.Error(err))
		return m, nil
	}
	s.bus.Emit(bus.Event{
		Type: eventName(m, EventMessageEdited, EventGroupEdited),
		Data: messagePayload{Message: response.FilterMessageInfo(m)},
	}, participants...)
	return m, nil
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// GetConversation pages the direct history with peerID, newest first.
// Messages the viewer deleted for themself are left out.
func (s *MessageService) GetConversation(ctx context.Context, viewerID, peerID, beforeID uint, limit int) ([]*model.Message, error) {
	const origin = "message.conversation"

	if peerID == 0 || peerID == viewerID {
		return nil, apperr.Validation(origin, "invalid peer")
	}
	if _, err := s.users.GetByID(ctx, peerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(origin, "user %d not found", peerID)
		}
		return nil, storeErr(origin, err)
	}

	messages, err := s.messages.Conversation(ctx, viewerID, peerID, beforeID, pageSize(limit))
	if err != nil {
		return nil, storeErr(origin, err)
	}
	return messages, nil
}

// GetGroupMessages pages a group history for one of its members
func (s *MessageService) GetGroupMessages(ctx context.Context, viewerID, groupID, beforeID uint, limit int) ([]*model.Message, error) {
	const origin = "message.group_history"

	member, err := s.groups.GetMember(ctx, groupID, viewerID)
	if err != nil {
		return nil, storeErr(origin, err)
	}
	if member == nil {
		return nil, apperr.Forbidden(origin, "not a member of group %d", groupID)
	}

	messages, err := s.messages.GroupHistory(ctx, viewerID, groupID, beforeID, pageSize(limit))
	if err != nil {
		return nil, storeErr(origin, err)
	}
	return messages, nil
}

// PinMessage pins a message for userID only
func (s *MessageService) PinMessage(ctx context.Context, userID, messageID uint) error {
	const origin = "message.pin"

	m, err := loadVisible(ctx, s.messages, s.conv, origin, messageID, userID)
	if err != nil {
		return err
	}
	if m.IsDeletedForAll {
		return apperr.Validation(origin, "message %d was recalled", messageID)
	}
	hidden, err := s.messages.IsHidden(ctx, m.ID, userID)
	if err != nil {
		return storeErr(origin, err)
	}
	if hidden {
		return apperr.NotFound(origin, "message %d not found", messageID)
	}

	if err := s.messages.Pin(ctx, userID, m.ID, s.now()); err != nil {
		return storeErr(origin, err)
	}
	s.bus.Emit(bus.Event{Type: EventMessagePinned, Data: pinPayload{MessageID: m.ID, UserID: userID}}, userID)
	return nil
}

// UnpinMessage drops the pin of userID; unpinning twice is fine
func (s *MessageService) UnpinMessage(ctx context.Context, userID, messageID uint) error {
	const origin = "message.unpin"

	if _, err := loadVisible(ctx, s.messages, s.conv, origin, messageID, userID); err != nil {
		return err
	}
	if err := s.messages.Unpin(ctx, userID, []uint{messageID}); err != nil {
		return storeErr(origin, err)
	}
	s.bus.Emit(bus.Event{Type: EventMessageUnpinned, Data: pinPayload{MessageID: messageID, UserID: userID}}, userID)
	return nil
}

// PinnedMessages lists the pins of userID, newest first
func (s *MessageService) PinnedMessages(ctx context.Context, userID uint) ([]*model.Message, error) {
	ids, err := s.messages.PinnedIDs(ctx, userID)
	if err != nil {
		return nil, storeErr("message.pinned", err)
	}
	found, err := s.messages.GetByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr("message.pinned", err)
	}
	byID := make(map[uint]*model.Message, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}
	out := make([]*model.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}
