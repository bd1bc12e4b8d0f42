package handler

import (
	"im-social/internal/service"
	"im-social/pkg/jwt"
	"im-social/pkg/response"

	"github.com/gin-gonic/gin"
)

type GroupHandler struct {
	messages *service.MessageService
	delivery *service.DeliveryService
}

// NewGroupHandler creates the group chat handler
func NewGroupHandler(messages *service.MessageService, delivery *service.DeliveryService) *GroupHandler {
	return &GroupHandler{messages: messages, delivery: delivery}
}

// SendMessage posts to :group_id
func (h *GroupHandler) SendMessage(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	type req struct {
		Content          string `json:"content" binding:"required"`
		MsgType          string `json:"msg_type"`
		ReplyToMessageID *uint  `json:"reply_to_message_id"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	message, err := h.messages.SendMessage(c.Request.Context(), service.SendMessageInput{
		SenderID:         jwt.GetUserID(c),
		GroupID:          groupID,
		Content:          r.Content,
		MsgType:          r.MsgType,
		ReplyToMessageID: r.ReplyToMessageID,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "message sent", response.FilterMessageInfo(message))
}

// GetMessages pages the history of :group_id
func (h *GroupHandler) GetMessages(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	before, limit := pageQuery(c)

	messages, err := h.messages.GetGroupMessages(c.Request.Context(), jwt.GetUserID(c), groupID, before, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, response.FilterMessages(messages))
}

// MarkRead reads every unread group message for the caller
func (h *GroupHandler) MarkRead(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	res, err := h.delivery.MarkGroupRead(c.Request.Context(), jwt.GetUserID(c), groupID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

// UnreadCount counts messages of :group_id the caller has not read
func (h *GroupHandler) UnreadCount(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	n, err := h.delivery.GroupUnreadCount(c.Request.Context(), jwt.GetUserID(c), groupID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"unread_count": n})
}
