package router

import (
	"github.com/labstack/echo/v4"

	"learnhub/internal/adapter/api/handler"
)

// SetupWebSocketRouter mounts /ws. Authentication happens inside the handler
// so the first-frame credential path works.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleWebSocket)
}
