package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/adapter/repository"
	"learnhub/internal/domain/entity"
	"learnhub/internal/infrastructure/auth"
	"learnhub/internal/infrastructure/ratelimit"
	ws "learnhub/internal/infrastructure/websocket"
	"learnhub/internal/usecase"
	"learnhub/pkg/errors"
)

const wsSecret = "ws-test-secret"

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newWSServer(t *testing.T) (*httptest.Server, *ws.Presence) {
	t.Helper()

	users := repository.NewMemoryUserRepository()
	users.Put(&entity.User{ID: "alice", Username: "alice", DisplayName: "Alice"})
	users.Put(&entity.User{ID: "bob", Username: "bob"})
	convs := repository.NewMemoryConversationRepository()

	presence := ws.NewPresence(users, time.Second)
	uc := usecase.NewChatUseCase(convs, users, presence, ws.NewRooms(convs), ratelimit.NewRateLimiter(nil), usecase.ChatUseCaseOptions{})
	authenticator := auth.NewAuthenticator(auth.NewJWTVerifier(wsSecret), users, 500*time.Millisecond)

	e := echo.New()
	h := NewWebSocketHandler(context.Background(), uc, authenticator, []string{"*"}, ws.ClientOptions{})
	e.GET("/ws", h.HandleWebSocket)

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server, presence
}

func signedToken(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(wsSecret))
	require.NoError(t, err)
	return signed
}

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
}

func dial(t *testing.T, url string, header http.Header) *gorillaws.Conn {
	t.Helper()
	conn, _, err := gorillaws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *gorillaws.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func expectClose(t *testing.T, conn *gorillaws.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *gorillaws.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, code, closeErr.Code)
		return
	}
}

func TestHandshakeCredentials(t *testing.T) {
	server, presence := newWSServer(t)
	token := signedToken(t, "alice")

	tests := []struct {
		name   string
		query  string
		header http.Header
	}{
		{"bearer header", "", http.Header{"Authorization": {"Bearer " + token}}},
		{"raw header", "", http.Header{"Authorization": {token}}},
		{"query parameter", "?token=" + token, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, wsURL(server, tt.query), tt.header)

			f := readFrame(t, conn)
			require.Equal(t, ws.EventAuthenticated, f.Event)
			var identity auth.Identity
			require.NoError(t, json.Unmarshal(f.Data, &identity))
			assert.Equal(t, "alice", identity.UserID)
			assert.Equal(t, "Alice", identity.DisplayName)

			status := readFrame(t, conn)
			assert.Equal(t, ws.EventUserStatus, status.Event)
			assert.True(t, presence.IsOnline("alice"))
		})
	}
}

func TestHandshakeRejectedBeforeUpgrade(t *testing.T) {
	server, presence := newWSServer(t)

	_, resp, err := gorillaws.DefaultDialer.Dial(wsURL(server, "?token=garbage"), nil)
	require.ErrorIs(t, err, gorillaws.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), errors.CodeAuthentication)
	assert.Empty(t, presence.OnlineUsers())
}

func TestFirstFrameAuthentication(t *testing.T) {
	server, presence := newWSServer(t)
	conn := dial(t, wsURL(server, ""), nil)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": ws.EventAuthenticate,
		"data":  map[string]string{"token": "Bearer " + signedToken(t, "bob")},
	}))

	f := readFrame(t, conn)
	require.Equal(t, ws.EventAuthenticated, f.Event)
	assert.Contains(t, string(f.Data), `"userId":"bob"`)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": ws.EventPing}))
	for {
		if readFrame(t, conn).Event == ws.EventPong {
			break
		}
	}
	assert.True(t, presence.IsOnline("bob"))
}

func TestFirstFrameFailures(t *testing.T) {
	server, presence := newWSServer(t)

	tests := []struct {
		name  string
		frame interface{}
	}{
		{"bad token", map[string]interface{}{"event": ws.EventAuthenticate, "data": map[string]string{"token": "nope"}}},
		{"unknown account", map[string]interface{}{"event": ws.EventAuthenticate, "data": map[string]string{"token": signedToken(t, "ghost")}}},
		{"wrong event", map[string]interface{}{"event": ws.EventPing}},
		{"no frame", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, wsURL(server, ""), nil)
			if tt.frame != nil {
				require.NoError(t, conn.WriteJSON(tt.frame))
			}

			f := readFrame(t, conn)
			require.Equal(t, ws.EventChatError, f.Event)
			var payload ws.ErrorPayload
			require.NoError(t, json.Unmarshal(f.Data, &payload))
			assert.Equal(t, errors.CodeAuthentication, payload.Code)
			assert.Equal(t, "authentication failed", payload.Message)

			expectClose(t, conn, ws.CloseAuthFailed)
			assert.Empty(t, presence.OnlineUsers())
		})
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com/"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example.com", true},
		{"https://APP.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, check(req), "origin %q", tt.origin)
	}

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://anything.example")
	assert.True(t, originChecker([]string{"*"})(req))
}
