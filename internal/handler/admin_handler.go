package handler

import (
	"im-social/internal/service"
	"im-social/pkg/jwt"
	"im-social/pkg/permission"
	"im-social/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the moderation console. Routes sit behind
// jwt.RequireRole(model.RoleAdmin); fine-grained permissions are checked
// per action.
type AdminHandler struct {
	recall *service.RecallService
	admins *service.AdminDirectory
	users  *UserHandler
}

// NewAdminHandler creates the admin console handler
func NewAdminHandler(recall *service.RecallService, admins *service.AdminDirectory, users *UserHandler) *AdminHandler {
	return &AdminHandler{recall: recall, admins: admins, users: users}
}

// Recall replaces message content with the moderation placeholder
func (h *AdminHandler) Recall(c *gin.Context) {
	type req struct {
		MessageIDs []uint `json:"message_ids" binding:"required,min=1"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.recall.AdminRecall(c.Request.Context(), jwt.GetUserID(c), r.MessageIDs)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

// DeleteForUser hides messages from one participant's view
func (h *AdminHandler) DeleteForUser(c *gin.Context) {
	type req struct {
		MessageIDs []uint `json:"message_ids" binding:"required,min=1"`
		UserID     uint   `json:"user_id" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.recall.AdminDeleteForUser(c.Request.Context(), jwt.GetUserID(c), r.MessageIDs, r.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

// Presence lists online users; needs presence.view
func (h *AdminHandler) Presence(c *gin.Context) {
	ok, err := h.admins.Can(c.Request.Context(), jwt.GetUserID(c), permission.PresenceView)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !ok {
		response.Forbidden(c, "missing permission "+permission.PresenceView)
		return
	}
	h.users.GetOnlineUsers(c)
}
