package repository

import (
	"context"
	"fmt"
	"time"

	"im-social/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	notHiddenFor = "NOT EXISTS (SELECT 1 FROM message_hide h WHERE h.message_id = message.id AND h.user_id = ?)"
	notReadBy    = "NOT EXISTS (SELECT 1 FROM read_receipt rr WHERE rr.message_id = message.id AND rr.user_id = ?)"
)

// MessageRepository stores messages and their per-user visibility rows
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Transaction runs fn with a repository bound to one transaction
func (r *MessageRepository) Transaction(ctx context.Context, fn func(tx *MessageRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&MessageRepository{db: tx})
	})
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *MessageRepository) GetByID(ctx context.Context, id uint) (*model.Message, error) {
	var message model.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

// GetByIDs loads messages in ascending ID order; missing IDs are skipped
func (r *MessageRepository) GetByIDs(ctx context.Context, ids []uint) ([]*model.Message, error) {
	var messages []*model.Message
	if len(ids) == 0 {
		return messages, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&messages).Error
	return messages, err
}

// FindUndelivered lists direct messages addressed to receiverID still in
// sent. Recalled messages are included: recall leaves status alone.
func (r *MessageRepository) FindUndelivered(ctx context.Context, receiverID uint) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("session_type = ? AND receiver_id = ? AND status = ?",
			model.SessionDirect, receiverID, model.StatusSent).
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

// AdvanceStatus moves messages forward to status. Rows already at or
// past status are left alone, so the update never regresses.
func (r *MessageRepository) AdvanceStatus(ctx context.Context, ids []uint, status string) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var lower []string
	for _, s := range []string{model.StatusSent, model.StatusDelivered, model.StatusRead} {
		if model.StatusRank(s) < model.StatusRank(status) {
			lower = append(lower, s)
		}
	}
	if len(lower) == 0 {
		return nil, nil
	}

	var advanced []uint
	err := r.Transaction(ctx, func(tx *MessageRepository) error {
		if err := tx.db.Model(&model.Message{}).
			Where("id IN ? AND status IN ?", ids, lower).
			Pluck("id", &advanced).Error; err != nil {
			return err
		}
		if len(advanced) == 0 {
			return nil
		}
		return tx.db.Model(&model.Message{}).
			Where("id IN ? AND status IN ?", advanced, lower).
			UpdateColumn("status", status).Error
	})
	if err != nil {
		return nil, fmt.Errorf("advance status to %s: %w", status, err)
	}
	return advanced, nil
}

// UnreadDirect lists messages from senderID to readerID not yet read,
// skipping redacted ones and ones the reader deleted for themself.
func (r *MessageRepository) UnreadDirect(ctx context.Context, readerID, senderID uint) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("session_type = ? AND sender_id = ? AND receiver_id = ? AND status <> ? AND is_deleted_for_all = ?",
			model.SessionDirect, senderID, readerID, model.StatusRead, false).
		Where(notHiddenFor, readerID).
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

// UnreadGroup lists group messages readerID has no receipt for
func (r *MessageRepository) UnreadGroup(ctx context.Context, readerID, groupID uint) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.unreadGroupQuery(ctx, readerID, groupID).Order("id ASC").Find(&messages).Error
	return messages, err
}

// CountUnreadGroup is the per-user unread count of a group
func (r *MessageRepository) CountUnreadGroup(ctx context.Context, readerID, groupID uint) (int64, error) {
	var count int64
	err := r.unreadGroupQuery(ctx, readerID, groupID).Count(&count).Error
	return count, err
}

func (r *MessageRepository) unreadGroupQuery(ctx context.Context, readerID, groupID uint) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Message{}).
		Where("session_type = ? AND group_id = ? AND sender_id <> ? AND is_deleted_for_all = ?",
			model.SessionGroup, groupID, readerID, false).
		Where(notHiddenFor, readerID).
		Where(notReadBy, readerID)
}

// MarkGroupIsRead sets the legacy flag on the first read
func (r *MessageRepository) MarkGroupIsRead(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id IN ? AND is_read = ?", ids, false).
		UpdateColumn("is_read", true).Error
}

// Conversation returns the direct history between viewer and peer as seen
// by viewer, newest first. beforeID 0 starts from the latest message.
func (r *MessageRepository) Conversation(ctx context.Context, viewerID, peerID, beforeID uint, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	q := r.db.WithContext(ctx).
		Where("session_type = ? AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
			model.SessionDirect, viewerID, peerID, peerID, viewerID).
		Where(notHiddenFor, viewerID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	err := q.Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// GroupHistory is Conversation for a group
func (r *MessageRepository) GroupHistory(ctx context.Context, viewerID, groupID, beforeID uint, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	q := r.db.WithContext(ctx).
		Where("session_type = ? AND group_id = ?", model.SessionGroup, groupID).
		Where(notHiddenFor, viewerID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	err := q.Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// Hide deletes messages for one user. Existing rows are kept.
func (r *MessageRepository) Hide(ctx context.Context, messageIDs []uint, userID uint, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	rows := make([]model.MessageHide, 0, len(messageIDs))
	for _, id := range messageIDs {
		rows = append(rows, model.MessageHide{MessageID: id, UserID: userID, HiddenAt: at})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// IsHidden reports whether userID deleted the message for themself
func (r *MessageRepository) IsHidden(ctx context.Context, messageID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.MessageHide{}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Count(&count).Error
	return count > 0, err
}

// RedactForAll clears a message for every participant and removes the
// receipts, reactions and pins that reference it. The message type stays.
func (r *MessageRepository) RedactForAll(ctx context.Context, id uint) error {
	return r.Transaction(ctx, func(tx *MessageRepository) error {
		if err := tx.db.Model(&model.Message{}).Where("id = ?", id).Updates(map[string]interface{}{
			"is_deleted_for_all":  true,
			"content":             "",
			"reply_to_message_id": nil,
		}).Error; err != nil {
			return err
		}
		return tx.purgeDependents(id)
	})
}

func (r *MessageRepository) purgeDependents(id uint) error {
	if err := r.db.Where("message_id = ?", id).Delete(&model.ReadReceipt{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("message_id = ?", id).Delete(&model.Reaction{}).Error; err != nil {
		return err
	}
	return r.db.Where("message_id = ?", id).Delete(&model.PinnedMessage{}).Error
}

// AdminRecall replaces the content with placeholder. UpdateColumns skips
// hooks and leaves updated_at untouched.
func (r *MessageRepository) AdminRecall(ctx context.Context, id uint, placeholder string) error {
	return r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"is_deleted_for_all":  true,
		"is_recalled":         true,
		"content":             placeholder,
		"msg_type":            model.MsgTypeRecalled,
		"reply_to_message_id": nil,
	}).Error
}

// UpdateContent edits a live message
func (r *MessageRepository) UpdateContent(ctx context.Context, id uint, content string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND is_deleted_for_all = ?", id, false).
		Updates(map[string]interface{}{"content": content, "edited_at": at})
	return res.RowsAffected > 0, res.Error
}

// Pin is idempotent per (user, message)
func (r *MessageRepository) Pin(ctx context.Context, userID, messageID uint, at time.Time) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.PinnedMessage{UserID: userID, MessageID: messageID, PinnedAt: at}).Error
}

// Unpin removes the pins of userID on the given messages
func (r *MessageRepository) Unpin(ctx context.Context, userID uint, messageIDs []uint) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("user_id = ? AND message_id IN ?", userID, messageIDs).
		Delete(&model.PinnedMessage{}).Error
}

// PinnedIDs lists the messages userID pinned, newest pin first
func (r *MessageRepository) PinnedIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&model.PinnedMessage{}).
		Where("user_id = ?", userID).
		Order("pinned_at DESC").
		Pluck("message_id", &ids).Error
	return ids, err
}
