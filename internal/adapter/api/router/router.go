package router

import (
	"github.com/labstack/echo/v4"

	"learnhub/internal/adapter/api/handler"
	"learnhub/internal/adapter/api/middleware"
	"learnhub/internal/infrastructure/ratelimit"
)

func Setup(
	e *echo.Echo,
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	adminMiddleware *middleware.AdminMiddleware,
	limiter *ratelimit.RateLimiter,
) {
	SetupHealthRouter(e, handlers.Health)
	SetupWebSocketRouter(e, handlers.WebSocket)
	SetupChatRouter(e, handlers.Chat, authMiddleware, limiter)
	SetupAdminRouter(e, handlers.Admin, authMiddleware, adminMiddleware)
}
