package approuters

import (
	"Amoura/internal/configuration"
	"Amoura/internal/middleware"

	"github.com/gin-gonic/gin"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	auth := middleware.Auth(container.Config.Server.JwtSecret)

	chatRoute := router.Group("/am/api/chats", auth)
	{
		chatRoute.POST("/send", container.ChatHandler.Send)
		chatRoute.GET("", container.ChatHandler.ChatList)
		chatRoute.GET("/unread-total", container.ChatHandler.TotalUnread)
		chatRoute.GET("/:otherUserId/messages", container.ChatHandler.Conversation)
		chatRoute.POST("/:otherUserId/read", container.ChatHandler.MarkRead)
		chatRoute.DELETE("/by-key/:conversationKey", container.ChatHandler.DeleteConversation)
	}

	userRoute := router.Group("/am/api/users", auth)
	{
		userRoute.POST("/:otherUserId/block", container.ChatHandler.Block)
		userRoute.DELETE("/:otherUserId/block", container.ChatHandler.Unblock)
		userRoute.GET("/:otherUserId/relationship", container.ChatHandler.Relationship)
	}
}
