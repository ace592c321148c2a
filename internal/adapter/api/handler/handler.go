package handler

import (
	"context"

	"learnhub/internal/infrastructure/auth"
	ws "learnhub/internal/infrastructure/websocket"
	"learnhub/internal/usecase"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Chat      *ChatHandler
	Admin     *AdminHandler
	Health    *HealthHandler
	WebSocket *WebSocketHandler
}

func Setup(
	ctx context.Context,
	chatUseCase *usecase.ChatUseCase,
	authenticator *auth.Authenticator,
	allowedOrigins []string,
	clientOpts ws.ClientOptions,
) *Handlers {
	return &Handlers{
		Chat:      NewChatHandler(chatUseCase),
		Admin:     NewAdminHandler(chatUseCase),
		Health:    NewHealthHandler(chatUseCase.OnlineUsers),
		WebSocket: NewWebSocketHandler(ctx, chatUseCase, authenticator, allowedOrigins, clientOpts),
	}
}
