package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"im-social/internal/model"

	"gorm.io/gorm"
)

// ErrNotFound is returned by Get* lookups that match no row
var ErrNotFound = errors.New("record not found")

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetByIDs loads users keyed by ID; unknown IDs are absent from the map
func (r *UserRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*model.User, error) {
	out := make(map[uint]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []*model.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *UserRepository) GetByUsernameOrEmail(ctx context.Context, identifier string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("username = ? OR email = ?", identifier, identifier).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// UpdateLastSeen persists the disconnect time
func (r *UserRepository) UpdateLastSeen(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumn("last_seen", at).Error
}

// UserSettings is a partial update of the privacy switches
type UserSettings struct {
	ReadReceiptsEnabled   *bool
	AllowStrangerMessages *bool
}

func (r *UserRepository) UpdateSettings(ctx context.Context, id uint, s UserSettings) error {
	updates := map[string]interface{}{}
	if s.ReadReceiptsEnabled != nil {
		updates["read_receipts_enabled"] = *s.ReadReceiptsEnabled
	}
	if s.AllowStrangerMessages != nil {
		updates["allow_stranger_messages"] = *s.AllowStrangerMessages
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates).Error
}

// FindActiveAdmins returns the active administrators among ids
func (r *UserRepository) FindActiveAdmins(ctx context.Context, ids []uint) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []*model.User
	err := r.db.WithContext(ctx).
		Where("id IN ? AND role = ? AND is_active = ?", ids, model.RoleAdmin, true).
		Find(&users).Error
	return users, err
}
