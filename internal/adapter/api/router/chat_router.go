package router

import (
	"github.com/labstack/echo/v4"

	"learnhub/internal/adapter/api/handler"
	"learnhub/internal/adapter/api/middleware"
	"learnhub/internal/infrastructure/ratelimit"
)

// SetupChatRouter mounts the REST side of chat. Live events go over /ws.
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	v1 := e.Group("/v1")
	v1.Use(authMiddleware.Authenticate)
	v1.Use(middleware.RateLimit(limiter))

	conversations := v1.Group("/conversations")
	conversations.POST("", chatHandler.StartConversation)        // POST /v1/conversations
	conversations.POST("/group", chatHandler.CreateGroup)        // POST /v1/conversations/group
	conversations.GET("", chatHandler.ListConversations)         // GET /v1/conversations
	conversations.GET("/:id", chatHandler.GetConversation)       // GET /v1/conversations/:id
	conversations.GET("/:id/messages", chatHandler.ListMessages) // GET /v1/conversations/:id/messages?cursor=&limit=
	conversations.PUT("/:id/read", chatHandler.MarkRead)         // PUT /v1/conversations/:id/read

	v1.POST("/attachments/upload-url", chatHandler.RequestUploadURL)
	v1.GET("/presence/online", chatHandler.OnlineUsers)
}
