package handler

import (
	"im-social/internal/model"
	"im-social/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// Handlers groups everything mounted under /api/v1
type Handlers struct {
	Users    *UserHandler
	Messages *MessageHandler
	Groups   *GroupHandler
	Admin    *AdminHandler
}

// RegisterRoutes mounts the REST API on r
func RegisterRoutes(r gin.IRouter, jwtSvc *jwt.JWTService, h Handlers) {
	v1 := r.Group("/api/v1")

	users := v1.Group("/users")
	{
		users.POST("/register", h.Users.Register)
		users.POST("/login", h.Users.Login)

		authUsers := users.Group("")
		authUsers.Use(jwtSvc.AuthMiddleware())
		{
			authUsers.GET("/profile", h.Users.GetProfile)
			authUsers.PUT("/settings", h.Users.UpdateSettings)
			authUsers.GET("/online", h.Users.GetOnlineUsers)
		}
	}

	friends := v1.Group("/friends")
	friends.Use(jwtSvc.AuthMiddleware())
	{
		friends.POST("/:user_id/block", h.Users.Block)
		friends.DELETE("/:user_id/block", h.Users.Unblock)
	}

	messages := v1.Group("/messages")
	messages.Use(jwtSvc.AuthMiddleware())
	{
		messages.POST("/send", h.Messages.SendMessage)
		messages.POST("/recall", h.Messages.Recall)
		messages.GET("/pinned", h.Messages.GetPinned)
		messages.POST("/read/:user_id", h.Messages.MarkConversationRead)
		messages.PUT("/:message_id", h.Messages.EditMessage)
		messages.PUT("/:message_id/read", h.Messages.MarkAsRead)
		messages.GET("/:message_id/readers", h.Messages.GetReaders)
		messages.GET("/:message_id/reactions", h.Messages.GetReactions)
		messages.POST("/:message_id/reactions", h.Messages.React)
		messages.DELETE("/:message_id/reactions", h.Messages.Unreact)
		messages.POST("/:message_id/pin", h.Messages.Pin)
		messages.DELETE("/:message_id/pin", h.Messages.Unpin)
	}

	conversations := v1.Group("/conversations")
	conversations.Use(jwtSvc.AuthMiddleware())
	{
		conversations.GET("/:user_id/messages", h.Messages.GetConversation)
	}

	groups := v1.Group("/groups")
	groups.Use(jwtSvc.AuthMiddleware())
	{
		groups.POST("/:group_id/messages", h.Groups.SendMessage)
		groups.GET("/:group_id/messages", h.Groups.GetMessages)
		groups.POST("/:group_id/read", h.Groups.MarkRead)
		groups.GET("/:group_id/unread", h.Groups.UnreadCount)
	}

	admin := v1.Group("/admin")
	admin.Use(jwtSvc.AuthMiddleware(), jwt.RequireRole(model.RoleAdmin))
	{
		admin.POST("/messages/recall", h.Admin.Recall)
		admin.POST("/messages/delete", h.Admin.DeleteForUser)
		admin.GET("/presence", h.Admin.Presence)
	}
}
