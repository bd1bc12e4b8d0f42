package repository

import (
	"context"
	"errors"

	"im-social/internal/model"

	"gorm.io/gorm"
)

type FriendshipRepository struct {
	db *gorm.DB
}

func NewFriendshipRepository(db *gorm.DB) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

// IsBlocked is symmetric: a block row in either direction blocks the pair
func (r *FriendshipRepository) IsBlocked(ctx context.Context, a, b uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)) AND status = ?",
			a, b, b, a, model.FriendshipBlocked).
		Count(&count).Error
	return count > 0, err
}

// AreFriends reports an accepted relation in either direction
func (r *FriendshipRepository) AreFriends(ctx context.Context, a, b uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)) AND status = ?",
			a, b, b, a, model.FriendshipAccepted).
		Count(&count).Error
	return count > 0, err
}

// AcceptedFriendIDs lists the accepted contacts of userID. A pair with a
// blocked row in either direction is left out even if an accepted row
// survives in the other direction.
func (r *FriendshipRepository) AcceptedFriendIDs(ctx context.Context, userID uint) ([]uint, error) {
	var rows []model.Friendship
	err := r.db.WithContext(ctx).
		Where("(user_id = ? OR friend_id = ?) AND status = ?", userID, userID, model.FriendshipAccepted).
		Where(`NOT EXISTS (SELECT 1 FROM friendship b WHERE b.status = ? AND
			((b.user_id = friendship.user_id AND b.friend_id = friendship.friend_id) OR
			 (b.user_id = friendship.friend_id AND b.friend_id = friendship.user_id)))`, model.FriendshipBlocked).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]struct{}, len(rows))
	ids := make([]uint, 0, len(rows))
	for _, f := range rows {
		other := f.FriendID
		if other == userID {
			other = f.UserID
		}
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		ids = append(ids, other)
	}
	return ids, nil
}

// Block records userID blocking targetID, replacing any prior relation
// row in that direction.
func (r *FriendshipRepository) Block(ctx context.Context, userID, targetID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f model.Friendship
		err := tx.Where("user_id = ? AND friend_id = ?", userID, targetID).First(&f).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&model.Friendship{UserID: userID, FriendID: targetID, Status: model.FriendshipBlocked}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&f).Update("status", model.FriendshipBlocked).Error
	})
}

// Unblock removes the block placed by userID; a block placed by the
// other side stays.
func (r *FriendshipRepository) Unblock(ctx context.Context, userID, targetID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND friend_id = ? AND status = ?", userID, targetID, model.FriendshipBlocked).
		Delete(&model.Friendship{}).Error
}
