package service

import (
	"context"
	"errors"
	"strings"

	"im-social/internal/model"
	"im-social/internal/repository"
	"im-social/pkg/apperr"
	"im-social/pkg/jwt"
	"im-social/pkg/password"
	"im-social/pkg/permission"
)

// UserService handles accounts, tokens, privacy settings and blocks
type UserService struct {
	repo        *repository.UserRepository
	friendships *repository.FriendshipRepository
	jwtService  *jwt.JWTService
}

// NewUserService creates the account service
func NewUserService(repo *repository.UserRepository, friendships *repository.FriendshipRepository, jwtService *jwt.JWTService) *UserService {
	return &UserService{repo: repo, friendships: friendships, jwtService: jwtService}
}

func (s *UserService) issue(u *model.User) (string, error) {
	return s.jwtService.GenerateToken(u.ID, map[string]interface{}{
		"username": u.Username,
		"role":     u.Role,
	})
}

// Register creates an active account with read receipts enabled
func (s *UserService) Register(ctx context.Context, username, email, plainPassword string) (*model.User, string, error) {
	const origin = "user.register"

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || plainPassword == "" {
		return nil, "", apperr.Validation(origin, "username and password are required")
	}
	exists, err := s.repo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, "", storeErr(origin, err)
	}
	if exists {
		return nil, "", apperr.Validation(origin, "username %q is taken", username)
	}

	hash, err := password.Hash(plainPassword)
	if errors.Is(err, password.ErrTooShort) {
		return nil, "", apperr.Validation(origin, "password must be at least %d characters", password.MinLength)
	}
	if err != nil {
		return nil, "", storeErr(origin, err)
	}

	user := &model.User{
		Username:              username,
		Email:                 email,
		PasswordHash:          hash,
		Role:                  model.RoleUser,
		IsActive:              true,
		ReadReceiptsEnabled:   true,
		AllowStrangerMessages: true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, "", storeErr(origin, err)
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, "", storeErr(origin, err)
	}
	return user, token, nil
}

// Login checks the credentials of an active account
func (s *UserService) Login(ctx context.Context, identifier, plainPassword string) (*model.User, string, error) {
	const origin = "user.login"

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || plainPassword == "" {
		return nil, "", apperr.Validation(origin, "identifier and password are required")
	}
	u, err := s.repo.GetByUsernameOrEmail(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", apperr.Unauthorized(origin, "invalid credentials")
	}
	if err != nil {
		return nil, "", storeErr(origin, err)
	}
	if !u.IsActive || !password.Verify(plainPassword, u.PasswordHash) {
		return nil, "", apperr.Unauthorized(origin, "invalid credentials")
	}

	token, err := s.issue(u)
	if err != nil {
		return nil, "", storeErr(origin, err)
	}
	return u, token, nil
}

// Authenticate resolves a websocket token to an active user
func (s *UserService) Authenticate(ctx context.Context, token string) (uint, error) {
	const origin = "user.authenticate"

	claims, err := s.jwtService.ValidateToken(token)
	if err != nil {
		return 0, apperr.Unauthorized(origin, "invalid token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return 0, apperr.Unauthorized(origin, "invalid token")
	}
	u, err := s.repo.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, apperr.Unauthorized(origin, "unknown account")
	}
	if err != nil {
		return 0, storeErr(origin, err)
	}
	if !u.IsActive {
		return 0, apperr.Unauthorized(origin, "account is inactive")
	}
	return u.ID, nil
}

// Profile loads userID
func (s *UserService) Profile(ctx context.Context, userID uint) (*model.User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("user.profile", "user %d not found", userID)
	}
	if err != nil {
		return nil, storeErr("user.profile", err)
	}
	return u, nil
}

// UpdateSettings changes the privacy switches; nil fields are kept
func (s *UserService) UpdateSettings(ctx context.Context, userID uint, settings repository.UserSettings) (*model.User, error) {
	if err := s.repo.UpdateSettings(ctx, userID, settings); err != nil {
		return nil, storeErr("user.settings", err)
	}
	return s.Profile(ctx, userID)
}

// Block cuts messages, calls, read receipts and presence between the two users
func (s *UserService) Block(ctx context.Context, userID, targetID uint) error {
	const origin = "user.block"

	if targetID == 0 || targetID == userID {
		return apperr.Validation(origin, "invalid target user")
	}
	if _, err := s.Profile(ctx, targetID); err != nil {
		return err
	}
	if err := s.friendships.Block(ctx, userID, targetID); err != nil {
		return storeErr(origin, err)
	}
	return nil
}

// Unblock lifts the block userID placed on targetID
func (s *UserService) Unblock(ctx context.Context, userID, targetID uint) error {
	if err := s.friendships.Unblock(ctx, userID, targetID); err != nil {
		return storeErr("user.unblock", err)
	}
	return nil
}

// AdminDirectory selects the connected admins allowed to watch the
// monitoring bus. It implements bus.AdminResolver.
type AdminDirectory struct {
	users *repository.UserRepository
	perms permission.Evaluator
}

// NewAdminDirectory resolves admins and their permissions
func NewAdminDirectory(users *repository.UserRepository, perms permission.Evaluator) *AdminDirectory {
	return &AdminDirectory{users: users, perms: perms}
}

// MonitoringAdmins filters candidates down to admins allowed to watch the admin bus
func (d *AdminDirectory) MonitoringAdmins(ctx context.Context, candidates []uint) ([]uint, error) {
	admins, err := d.users.FindActiveAdmins(ctx, candidates)
	if err != nil {
		return nil, err
	}
	out := make([]uint, 0, len(admins))
	for _, a := range admins {
		if d.perms.HasPermission(a, permission.ChatMonitor) {
			out = append(out, a.ID)
		}
	}
	return out, nil
}

// Can reports whether userID holds action
func (d *AdminDirectory) Can(ctx context.Context, userID uint, action string) (bool, error) {
	u, err := d.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return d.perms.HasPermission(u, action), nil
}
