package handler

import (
	"context"
	"sort"
	"time"

	"im-social/internal/repository"
	"im-social/internal/service"
	"im-social/pkg/jwt"
	"im-social/pkg/logger"
	"im-social/pkg/redis"
	"im-social/pkg/response"
	"im-social/pkg/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClusterPresence lists users online on any node; implemented by
// redis.PresenceStore.
type ClusterPresence interface {
	Online(ctx context.Context) ([]redis.PresenceData, error)
}

type UserHandler struct {
	service  *service.UserService
	presence *websocket.Presence
	cluster  ClusterPresence
}

// NewUserHandler builds the account handler. cluster may be nil, in which
// case only this node's connections are reported.
func NewUserHandler(s *service.UserService, presence *websocket.Presence, cluster ClusterPresence) *UserHandler {
	return &UserHandler{service: s, presence: presence, cluster: cluster}
}

// Register creates an account and returns a token
func (h *UserHandler) Register(c *gin.Context) {
	type req struct {
		Username string `json:"username" binding:"required,max=64"`
		Email    string `json:"email" binding:"omitempty,email"`
		Password string `json:"password" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, token, err := h.service.Register(c.Request.Context(), r.Username, r.Email, r.Password)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "registered", &response.LoginResponse{
		User:        response.FilterUserInfo(user),
		AccessToken: token,
	})
}

// Login authenticates by username or email
func (h *UserHandler) Login(c *gin.Context) {
	type req struct {
		UsernameOrEmail string `json:"usernameOrEmail" binding:"required"`
		Password        string `json:"password" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, token, err := h.service.Login(c.Request.Context(), r.UsernameOrEmail, r.Password)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "logged in", &response.LoginResponse{
		User:        response.FilterUserInfo(user),
		AccessToken: token,
	})
}

// GetProfile returns the caller
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.service.Profile(c.Request.Context(), jwt.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, response.FilterUserInfo(user))
}

// UpdateSettings toggles read receipts and stranger messages; omitted
// fields keep their value.
func (h *UserHandler) UpdateSettings(c *gin.Context) {
	type req struct {
		ReadReceiptsEnabled   *bool `json:"read_receipts_enabled"`
		AllowStrangerMessages *bool `json:"allow_stranger_messages"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, err := h.service.UpdateSettings(c.Request.Context(), jwt.GetUserID(c), repository.UserSettings{
		ReadReceiptsEnabled:   r.ReadReceiptsEnabled,
		AllowStrangerMessages: r.AllowStrangerMessages,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "settings updated", response.FilterUserInfo(user))
}

// Block blocks :user_id for the caller
func (h *UserHandler) Block(c *gin.Context) {
	target, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	if err := h.service.Block(c.Request.Context(), jwt.GetUserID(c), target); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "user blocked", nil)
}

// Unblock lifts a block the caller placed
func (h *UserHandler) Unblock(c *gin.Context) {
	target, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	if err := h.service.Unblock(c.Request.Context(), jwt.GetUserID(c), target); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "user unblocked", nil)
}

// GetOnlineUsers reports who is connected. With a redis mirror the view
// covers every node, otherwise only this one.
func (h *UserHandler) GetOnlineUsers(c *gin.Context) {
	users := h.onlineUsers(c.Request.Context())
	response.Success(c, gin.H{
		"online_count": len(users),
		"users":        users,
	})
}

type onlineUser struct {
	UserID      uint   `json:"user_id"`
	ConnectedAt string `json:"connected_at"`
}

func (h *UserHandler) onlineUsers(ctx context.Context) []onlineUser {
	if h.cluster != nil {
		records, err := h.cluster.Online(ctx)
		if err == nil {
			out := make([]onlineUser, 0, len(records))
			for _, r := range records {
				out = append(out, onlineUser{UserID: r.UserID, ConnectedAt: r.ConnectedAt.Format(time.RFC3339)})
			}
			sortOnline(out)
			return out
		}
		logger.Warn("cluster presence unavailable, using local view", zap.Error(err))
	}

	snapshot := h.presence.Snapshot()
	out := make([]onlineUser, 0, len(snapshot))
	for uid, d := range snapshot {
		out = append(out, onlineUser{UserID: uid, ConnectedAt: d.ConnectedAt.Format(time.RFC3339)})
	}
	sortOnline(out)
	return out
}

func sortOnline(users []onlineUser) {
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
}
