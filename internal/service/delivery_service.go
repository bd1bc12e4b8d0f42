package service

import (
	"context"
	"time"

	"im-social/internal/model"
	"im-social/internal/repository"
	"im-social/pkg/apperr"
	"im-social/pkg/bus"
	"im-social/pkg/db"
	"im-social/pkg/logger"

	"go.uber.org/zap"
)

const receiptAttempts = 3

// ReadResult reports the messages a read action changed
type ReadResult struct {
	MarkedCount int    `json:"marked_count"`
	MessageIDs  []uint `json:"message_ids"`
}

// DeliveryService moves messages through sent, delivered and read.
// Status never moves backwards. Read receipts are stored whatever the
// users' settings; the read event is only pushed under mutual opt-in.
type DeliveryService struct {
	messages *repository.MessageRepository
	receipts *repository.ReceiptRepository
	users    *repository.UserRepository
	groups   *repository.GroupRepository
	blocks   BlockChecker
	bus      Publisher
	conv     conversations
	now      Clock
}

// NewDeliveryService creates the delivery state machine
func NewDeliveryService(
	messages *repository.MessageRepository,
	receipts *repository.ReceiptRepository,
	users *repository.UserRepository,
	groups *repository.GroupRepository,
	blocks BlockChecker,
	publisher Publisher,
) *DeliveryService {
	return &DeliveryService{
		messages: messages,
		receipts: receipts,
		users:    users,
		groups:   groups,
		blocks:   blocks,
		bus:      publisher,
		conv:     conversations{groups: groups},
		now:      time.Now,
	}
}

// SweepOnConnect marks every direct message waiting for userID as
// delivered and tells each sender.
func (s *DeliveryService) SweepOnConnect(ctx context.Context, userID uint) (int, error) {
	pending, err := s.messages.FindUndelivered(ctx, userID)
	if err != nil {
		return 0, storeErr("delivery.sweep", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ids := make([]uint, 0, len(pending))
	senderOf := make(map[uint]uint, len(pending))
	for _, m := range pending {
		ids = append(ids, m.ID)
		senderOf[m.ID] = m.SenderID
	}

	advanced, err := s.messages.AdvanceStatus(ctx, ids, model.StatusDelivered)
	if err != nil {
		return 0, storeErr("delivery.sweep", err)
	}

	bySender := make(map[uint][]uint)
	var senders []uint
	for _, id := range advanced {
		sender := senderOf[id]
		if _, ok := bySender[sender]; !ok {
			senders = append(senders, sender)
		}
		bySender[sender] = append(bySender[sender], id)
	}
	for _, sender := range senders {
		s.bus.Emit(bus.Event{Type: EventMessageDelivered, Data: deliveryPayload{
			MessageIDs: bySender[sender],
			ReceiverID: userID,
			Status:     model.StatusDelivered,
		}}, sender)
	}

	logger.Debug("delivery sweep", zap.Uint("user_id", userID), zap.Int("delivered", len(advanced)))
	return len(advanced), nil
}

// MarkConversationRead reads every unread message peerID sent to readerID
func (s *DeliveryService) MarkConversationRead(ctx context.Context, readerID, peerID uint) (ReadResult, error) {
	if peerID == 0 || peerID == readerID {
		return ReadResult{}, apperr.Validation("delivery.conversation_read", "invalid peer")
	}

	unread, err := s.messages.UnreadDirect(ctx, readerID, peerID)
	if err != nil {
		return ReadResult{}, storeErr("delivery.conversation_read", err)
	}
	return s.readDirect(ctx, readerID, peerID, unread)
}

// MarkGroupRead reads every message of the group readerID has not read yet
func (s *DeliveryService) MarkGroupRead(ctx context.Context, readerID, groupID uint) (ReadResult, error) {
	if err := s.requireMember(ctx, "delivery.group_read", groupID, readerID); err != nil {
		return ReadResult{}, err
	}

	unread, err := s.messages.UnreadGroup(ctx, readerID, groupID)
	if err != nil {
		return ReadResult{}, storeErr("delivery.group_read", err)
	}
	return s.readGroup(ctx, readerID, groupID, unread)
}

// MarkMessageRead reads a single direct or group message
func (s *DeliveryService) MarkMessageRead(ctx context.Context, readerID, messageID uint) (ReadResult, error) {
	const origin = "delivery.message_read"

	m, err := loadVisible(ctx, s.messages, s.conv, origin, messageID, readerID)
	if err != nil {
		return ReadResult{}, err
	}
	if m.IsDeletedForAll || m.SenderID == readerID {
		return ReadResult{}, nil
	}
	hidden, err := s.messages.IsHidden(ctx, m.ID, readerID)
	if err != nil {
		return ReadResult{}, storeErr(origin, err)
	}
	if hidden {
		return ReadResult{}, nil
	}

	if m.IsGroup() {
		receipt, err := s.receipts.Get(ctx, m.ID, readerID)
		if err != nil {
			return ReadResult{}, storeErr(origin, err)
		}
		if receipt != nil {
			return ReadResult{}, nil
		}
		return s.readGroup(ctx, readerID, *m.GroupID, []*model.Message{m})
	}
	return s.readDirect(ctx, readerID, m.SenderID, []*model.Message{m})
}

// ReaderInfo is one entry of a message's read-by list
type ReaderInfo struct {
	UserID uint      `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// Readers lists who read a message, earliest first. Only the sender may
// ask, and readers outside the mutual opt-in are left out.
func (s *DeliveryService) Readers(ctx context.Context, senderID, messageID uint) ([]ReaderInfo, error) {
	const origin = "delivery.readers"

	m, err := loadVisible(ctx, s.messages, s.conv, origin, messageID, senderID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != senderID {
		return nil, apperr.Forbidden(origin, "only the sender can list readers")
	}

	receipts, err := s.receipts.Readers(ctx, m.ID)
	if err != nil {
		return nil, storeErr(origin, err)
	}
	out := make([]ReaderInfo, 0, len(receipts))
	for _, r := range receipts {
		if s.receiptsVisible(ctx, r.UserID, senderID) {
			out = append(out, ReaderInfo{UserID: r.UserID, ReadAt: r.ReadAt})
		}
	}
	return out, nil
}

// GroupUnreadCount counts group messages userID has no receipt for
func (s *DeliveryService) GroupUnreadCount(ctx context.Context, userID, groupID uint) (int64, error) {
	if err := s.requireMember(ctx, "delivery.group_unread", groupID, userID); err != nil {
		return 0, err
	}
	n, err := s.messages.CountUnreadGroup(ctx, userID, groupID)
	if err != nil {
		return 0, storeErr("delivery.group_unread", err)
	}
	return n, nil
}

func (s *DeliveryService) readDirect(ctx context.Context, readerID, senderID uint, unread []*model.Message) (ReadResult, error) {
	if len(unread) == 0 {
		return ReadResult{MessageIDs: []uint{}}, nil
	}
	ids := messageIDs(unread)

	// receipts are stored after the status update and may be dropped
	advanced, err := s.messages.AdvanceStatus(ctx, ids, model.StatusRead)
	if err != nil {
		return ReadResult{}, storeErr("delivery.read", err)
	}
	if len(advanced) == 0 {
		return ReadResult{MessageIDs: []uint{}}, nil
	}

	at := s.now()
	s.storeReceipts(ctx, advanced, readerID, at)

	ev := bus.Event{Type: EventMessageRead, Data: readPayload{MessageIDs: advanced, ReaderID: readerID, ReadAt: at}}
	if s.receiptsVisible(ctx, readerID, senderID) {
		s.bus.Publish(ev, senderID)
	}
	s.bus.PublishAdmin(ev)

	return ReadResult{MarkedCount: len(advanced), MessageIDs: advanced}, nil
}

func (s *DeliveryService) readGroup(ctx context.Context, readerID, groupID uint, unread []*model.Message) (ReadResult, error) {
	if len(unread) == 0 {
		return ReadResult{MessageIDs: []uint{}}, nil
	}
	ids := messageIDs(unread)

	// legacy flag, set by the first reader and never cleared
	if err := s.messages.MarkGroupIsRead(ctx, ids); err != nil {
		return ReadResult{}, storeErr("delivery.group_read", err)
	}

	at := s.now()
	s.storeReceipts(ctx, ids, readerID, at)

	bySender := make(map[uint][]uint)
	var senders []uint
	for _, m := range unread {
		if _, ok := bySender[m.SenderID]; !ok {
			senders = append(senders, m.SenderID)
		}
		bySender[m.SenderID] = append(bySender[m.SenderID], m.ID)
	}

	gid := groupID
	for _, sender := range senders {
		if s.receiptsVisible(ctx, readerID, sender) {
			s.bus.Publish(bus.Event{Type: EventGroupMessageRead, Data: readPayload{
				MessageIDs: bySender[sender], ReaderID: readerID, GroupID: &gid, ReadAt: at,
			}}, sender)
		}
	}
	s.bus.PublishAdmin(bus.Event{Type: EventGroupMessageRead, Data: readPayload{
		MessageIDs: ids, ReaderID: readerID, GroupID: &gid, ReadAt: at,
	}})

	return ReadResult{MarkedCount: len(ids), MessageIDs: ids}, nil
}

// storeReceipts writes one receipt per message, retrying lock contention.
// A receipt that still fails is logged and dropped.
func (s *DeliveryService) storeReceipts(ctx context.Context, ids []uint, readerID uint, at time.Time) {
	for _, id := range ids {
		messageID := id
		err := db.RetryTransient(ctx, receiptAttempts, func() error {
			_, err := s.receipts.CreateIfAbsent(ctx, messageID, readerID, at)
			return err
		})
		if err != nil {
			logger.Warn("read receipt dropped",
				zap.Uint("message_id", messageID),
				zap.Uint("user_id", readerID),
				zap.Error(err),
			)
		}
	}
}

// receiptsVisible is the mutual opt-in gate: both users enabled read
// receipts and neither blocked the other.
func (s *DeliveryService) receiptsVisible(ctx context.Context, readerID, senderID uint) bool {
	users, err := s.users.GetByIDs(ctx, []uint{readerID, senderID})
	if err != nil {
		logger.Warn("load users for read receipt", zap.Error(err))
		return false
	}
	reader, sender := users[readerID], users[senderID]
	if reader == nil || sender == nil || !reader.ReadReceiptsEnabled || !sender.ReadReceiptsEnabled {
		return false
	}

	blocked, err := s.blocks.IsBlocked(ctx, readerID, senderID)
	if err != nil {
		logger.Warn("block lookup for read receipt", zap.Error(err))
		return false
	}
	return !blocked
}

func (s *DeliveryService) requireMember(ctx context.Context, origin string, groupID, userID uint) error {
	member, err := s.groups.GetMember(ctx, groupID, userID)
	if err != nil {
		return storeErr(origin, err)
	}
	if member == nil {
		return apperr.Forbidden(origin, "not a member of group %d", groupID)
	}
	return nil
}

func messageIDs(messages []*model.Message) []uint {
	ids := make([]uint, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}
