package handler

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"learnhub/internal/infrastructure/auth"
	ws "learnhub/internal/infrastructure/websocket"
	"learnhub/internal/usecase"
	"learnhub/pkg/errors"
	"learnhub/pkg/logger"
	"learnhub/pkg/response"
)

const defaultAuthWindow = 10 * time.Second

var errExpectedAuthenticate = stderrors.New("first event must be authenticate")

type WebSocketHandler struct {
	baseCtx       context.Context
	chatUseCase   *usecase.ChatUseCase
	authenticator *auth.Authenticator
	upgrader      gorillaws.Upgrader
	clientOpts    ws.ClientOptions
}

// NewWebSocketHandler serves /ws. Connections live until ctx is cancelled or
// the peer goes away.
func NewWebSocketHandler(
	ctx context.Context,
	chatUseCase *usecase.ChatUseCase,
	authenticator *auth.Authenticator,
	allowedOrigins []string,
	clientOpts ws.ClientOptions,
) *WebSocketHandler {
	return &WebSocketHandler{
		baseCtx:       ctx,
		chatUseCase:   chatUseCase,
		authenticator: authenticator,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clientOpts: clientOpts,
	}
}

// HandleWebSocket authenticates from the Authorization header or token query
// parameter before upgrading. Without either, the first frame must be an
// authenticate event.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	r := c.Request()

	var identity *auth.Identity
	if token := auth.ExtractToken(r); token != "" {
		id, err := h.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			return response.Error(c, err)
		}
		identity = id
	}

	conn, err := h.upgrader.Upgrade(c.Response(), r, nil)
	if err != nil {
		logger.Warn("WebSocket: upgrade failed from %s: %v", c.RealIP(), err)
		return nil
	}

	client := ws.NewClient(conn, h.clientOpts)

	if identity == nil {
		identity, err = h.authenticateFirstFrame(r.Context(), client)
		if err != nil {
			_ = client.WriteEvent(ws.EventChatError, ws.ErrorFor(ws.EventAuthenticate, err))
			client.Close(ws.CloseAuthFailed, "authentication failed")
			return nil
		}
	}

	client.Bind(identity)
	if err := client.WriteEvent(ws.EventAuthenticated, identity); err != nil {
		client.Close(gorillaws.CloseGoingAway, "write failed")
		return nil
	}
	client.Start()

	h.chatUseCase.Connect(h.baseCtx, client)
	defer h.chatUseCase.Disconnect(context.Background(), client)

	client.ReadLoop(h.baseCtx, func(ctx context.Context, message []byte) {
		h.chatUseCase.HandleMessage(ctx, client, message)
	})
	return nil
}

func (h *WebSocketHandler) authenticateFirstFrame(ctx context.Context, client *ws.Client) (*auth.Identity, error) {
	window := h.authenticator.Timeout()
	if window <= 0 {
		window = defaultAuthWindow
	}

	raw, err := client.ReadFirst(window)
	if err != nil {
		return nil, errors.Authentication(err)
	}

	event, err := ws.DecodeInbound(raw)
	if err != nil {
		return nil, errors.Authentication(err)
	}
	authEvent, ok := event.(ws.AuthenticateEvent)
	if !ok {
		return nil, errors.Authentication(errExpectedAuthenticate)
	}

	return h.authenticator.Authenticate(ctx, authEvent.Token)
}

// originChecker allows requests without an Origin header (non-browser
// clients) and origins on the list. "*" allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return set[strings.ToLower(origin)]
	}
}
