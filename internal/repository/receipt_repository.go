package repository

import (
	"context"
	"time"

	"im-social/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReceiptRepository stores read receipts for direct and group messages
type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// CreateIfAbsent inserts the receipt or, when one exists, lowers its
// read_at to readAt if that is earlier. created reports a new row.
func (r *ReceiptRepository) CreateIfAbsent(ctx context.Context, messageID, userID uint, readAt time.Time) (created bool, err error) {
	db := r.db.WithContext(ctx)

	res := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ReadReceipt{MessageID: messageID, UserID: userID, ReadAt: readAt})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	err = db.Model(&model.ReadReceipt{}).
		Where("message_id = ? AND user_id = ? AND read_at > ?", messageID, userID, readAt).
		UpdateColumn("read_at", readAt).Error
	return false, err
}

// Get returns nil, nil when there is no receipt
func (r *ReceiptRepository) Get(ctx context.Context, messageID, userID uint) (*model.ReadReceipt, error) {
	var rr []model.ReadReceipt
	err := r.db.WithContext(ctx).Where("message_id = ? AND user_id = ?", messageID, userID).Limit(1).Find(&rr).Error
	if err != nil || len(rr) == 0 {
		return nil, err
	}
	return &rr[0], nil
}

// Readers lists who read the message, earliest first
func (r *ReceiptRepository) Readers(ctx context.Context, messageID uint) ([]model.ReadReceipt, error) {
	var rr []model.ReadReceipt
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).Order("read_at ASC, id ASC").Find(&rr).Error
	return rr, err
}
