package response

import (
	"errors"
	"net/http"

	"im-social/internal/model"
	"im-social/pkg/apperr"
	"im-social/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const timeLayout = "2006-01-02 15:04:05"

// Response is the envelope of every REST answer.
// Code is 0 on success, otherwise an HTTP-style status code.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"` // debug mode only
}

// Success answers with code 0 and data
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage answers with code 0 and a custom message
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// Error answers with the given code in the envelope
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// FromError writes err using its AppError code; unknown errors are
// logged and reported as 500 without leaking details.
func FromError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)

	message := "internal error"
	var appErr *apperr.AppError
	if errors.As(err, &appErr) && code != apperr.CodeInternal {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		_ = c.Error(err)
	}

	resp := Response{Code: status, Message: message}
	if gin.Mode() == gin.DebugMode {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// BadRequest 400
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized 401
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// Forbidden 403
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

// UserInfo is the public view of a user
type UserInfo struct {
	ID                    uint   `json:"id"`
	Username              string `json:"username"`
	Email                 string `json:"email"`
	Nickname              string `json:"nickname"`
	Avatar                string `json:"avatar"`
	Role                  string `json:"role"`
	ReadReceiptsEnabled   bool   `json:"read_receipts_enabled"`
	AllowStrangerMessages bool   `json:"allow_stranger_messages"`
	LastSeen              string `json:"last_seen"`
	CreatedAt             string `json:"created_at"`
}

// FilterUserInfo drops credentials and internal fields
func FilterUserInfo(user *model.User) *UserInfo {
	if user == nil {
		return nil
	}

	info := &UserInfo{
		ID:                    user.ID,
		Username:              user.Username,
		Email:                 user.Email,
		Nickname:              user.Nickname,
		Avatar:                user.Avatar,
		Role:                  user.Role,
		ReadReceiptsEnabled:   user.ReadReceiptsEnabled,
		AllowStrangerMessages: user.AllowStrangerMessages,
		CreatedAt:             user.CreatedAt.Format(timeLayout),
	}
	if user.LastSeen != nil {
		info.LastSeen = user.LastSeen.Format(timeLayout)
	}
	return info
}

// LoginResponse is returned by register and login
type LoginResponse struct {
	User        *UserInfo `json:"user"`
	AccessToken string    `json:"access_token"`
}

// MessageResponse is the client view of a message
type MessageResponse struct {
	ID               uint   `json:"id"`
	SessionType      int    `json:"session_type"`
	SenderID         uint   `json:"sender_id"`
	ReceiverID       uint   `json:"receiver_id,omitempty"`
	GroupID          *uint  `json:"group_id,omitempty"`
	Content          string `json:"content"`
	MsgType          string `json:"msg_type"`
	Status           string `json:"status"`
	IsRead           bool   `json:"is_read"`
	IsDeletedForAll  bool   `json:"is_deleted_for_all"`
	IsRecalled       bool   `json:"is_recalled"`
	ReplyToMessageID *uint  `json:"reply_to_message_id,omitempty"`
	Edited           bool   `json:"edited"`
	CreatedAt        string `json:"created_at"`
}

// FilterMessageInfo converts a message for the wire
func FilterMessageInfo(message *model.Message) *MessageResponse {
	if message == nil {
		return nil
	}

	return &MessageResponse{
		ID:               message.ID,
		SessionType:      message.SessionType,
		SenderID:         message.SenderID,
		ReceiverID:       message.ReceiverID,
		GroupID:          message.GroupID,
		Content:          message.Content,
		MsgType:          message.MsgType,
		Status:           message.Status,
		IsRead:           message.IsRead,
		IsDeletedForAll:  message.IsDeletedForAll,
		IsRecalled:       message.IsRecalled,
		ReplyToMessageID: message.ReplyToMessageID,
		Edited:           message.EditedAt != nil,
		CreatedAt:        message.CreatedAt.Format(timeLayout),
	}
}

// FilterMessages converts a list of messages
func FilterMessages(messages []*model.Message) []*MessageResponse {
	out := make([]*MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, FilterMessageInfo(m))
	}
	return out
}
