package repository

import (
	"context"
	"time"

	"im-social/internal/model"

	"gorm.io/gorm"
)

type ReactionRepository struct {
	db *gorm.DB
}

func NewReactionRepository(db *gorm.DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// Transaction runs fn with a repository bound to one transaction
func (r *ReactionRepository) Transaction(ctx context.Context, fn func(tx *ReactionRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ReactionRepository{db: tx})
	})
}

// ListForUser returns the reactions of userID on messageID in ascending
// reacted_at order, ties broken by insertion order.
func (r *ReactionRepository) ListForUser(ctx context.Context, userID, messageID uint) ([]model.Reaction, error) {
	var rows []model.Reaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Order("reacted_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// Bump increments an existing reaction and refreshes its time
func (r *ReactionRepository) Bump(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Reaction{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"count":      gorm.Expr("count + 1"),
		"reacted_at": at,
	}).Error
}

// Insert stores a new reaction row
func (r *ReactionRepository) Insert(ctx context.Context, reaction *model.Reaction) error {
	return r.db.WithContext(ctx).Create(reaction).Error
}

// DeleteByID removes one reaction row
func (r *ReactionRepository) DeleteByID(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.Reaction{}, id).Error
}

// ListForMessage returns every reaction on a message
func (r *ReactionRepository) ListForMessage(ctx context.Context, messageID uint) ([]model.Reaction, error) {
	var rows []model.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("reacted_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
