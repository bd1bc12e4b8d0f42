package handler

import (
	"im-social/internal/service"
	"im-social/pkg/jwt"
	"im-social/pkg/response"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messages  *service.MessageService
	delivery  *service.DeliveryService
	reactions *service.ReactionService
	recall    *service.RecallService
}

// NewMessageHandler creates the direct message handler
func NewMessageHandler(
	messages *service.MessageService,
	delivery *service.DeliveryService,
	reactions *service.ReactionService,
	recall *service.RecallService,
) *MessageHandler {
	return &MessageHandler{messages: messages, delivery: delivery, reactions: reactions, recall: recall}
}

// SendMessage sends a direct message
func (h *MessageHandler) SendMessage(c *gin.Context) {
	type req struct {
		ReceiverID       uint   `json:"receiver_id" binding:"required"`
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
		ReceiverID:       r.ReceiverID,
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

// EditMessage rewrites the text of the caller's message
func (h *MessageHandler) EditMessage(c *gin.Context) {
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	type req struct {
		Content string `json:"content" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	message, err := h.messages.EditMessage(c.Request.Context(), jwt.GetUserID(c), messageID, r.Content)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "message edited", response.FilterMessageInfo(message))
}

// GetConversation returns the direct history with :user_id, newest first
func (h *MessageHandler) GetConversation(c *gin.Context) {
	peerID, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	before, limit := pageQuery(c)

	messages, err := h.messages.GetConversation(c.Request.Context(), jwt.GetUserID(c), peerID, before, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, response.FilterMessages(messages))
}

// MarkAsRead reads a single message
func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	res, err := h.delivery.MarkMessageRead(c.Request.Context(), jwt.GetUserID(c), messageID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

// MarkConversationRead is called when the reader opens the chat with :user_id
func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	peerID, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	res, err := h.delivery.MarkConversationRead(c.Request.Context(), jwt.GetUserID(c), peerID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

// Recall deletes messages for the caller ("self") or for everyone ("all")
func (h *MessageHandler) Recall(c *gin.Context) {
	type req struct {
		MessageIDs []uint `json:"message_ids" binding:"required,min=1"`
		Scope      string `json:"scope" binding:"required,oneof=self all"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.recall.Recall(c.Request.Context(), jwt.GetUserID(c), r.MessageIDs, r.Scope)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

// React adds a reaction to :message_id
func (h *MessageHandler) React(c *gin.Context) {
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	type req struct {
		Type string `json:"type" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.reactions.React(c.Request.Context(), jwt.GetUserID(c), messageID, r.Type)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

// Unreact removes one reaction type (?type=) or all of the caller's
func (h *MessageHandler) Unreact(c *gin.Context) {
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	removed, err := h.reactions.Unreact(c.Request.Context(), jwt.GetUserID(c), messageID, c.Query("type"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}

// GetReactions returns the per-type reaction summary of :message_id
func (h *MessageHandler) GetReactions(c *gin.Context) {
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	summary, err := h.reactions.Summary(c.Request.Context(), jwt.GetUserID(c), messageID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, summary)
}

// GetReaders lists who read :message_id; sender only
func (h *MessageHandler) GetReaders(c *gin.Context) {
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	readers, err := h.delivery.Readers(c.Request.Context(), jwt.GetUserID(c), messageID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, readers)
}

// Pin pins :message_id for the caller
func (h *MessageHandler) Pin(c *gin.Context) {
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	if err := h.messages.PinMessage(c.Request.Context(), jwt.GetUserID(c), messageID); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "message pinned", nil)
}

// Unpin removes the caller's pin
func (h *MessageHandler) Unpin(c *gin.Context) {
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	if err := h.messages.UnpinMessage(c.Request.Context(), jwt.GetUserID(c), messageID); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "message unpinned", nil)
}

// GetPinned lists the caller's pinned messages
func (h *MessageHandler) GetPinned(c *gin.Context) {
	messages, err := h.messages.PinnedMessages(c.Request.Context(), jwt.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, response.FilterMessages(messages))
}
