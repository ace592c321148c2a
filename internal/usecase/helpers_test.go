package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"learnhub/internal/adapter/repository"
	"learnhub/internal/domain/entity"
	domainrepo "learnhub/internal/domain/repository"
	"learnhub/internal/infrastructure/auth"
	"learnhub/internal/infrastructure/ratelimit"
	ws "learnhub/internal/infrastructure/websocket"
)

type harness struct {
	uc       *ChatUseCase
	convs    domainrepo.ConversationRepository
	users    *repository.MemoryUserRepository
	presence *ws.Presence
	rooms    *ws.Rooms
	server   *httptest.Server
	accepted chan *ws.Client
}

// newHarness wires the chat core against in-memory stores and serves it over
// a real websocket endpoint. The user id comes from the query string. nil
// limits means the defaults.
func newHarness(t *testing.T, limits map[string]ratelimit.Limit) *harness {
	t.Helper()

	users := repository.NewMemoryUserRepository()
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		users.Put(&entity.User{ID: id, Username: id})
	}
	convs := repository.NewMemoryConversationRepository()

	h := &harness{
		convs:    convs,
		users:    users,
		presence: ws.NewPresence(users, time.Second),
		rooms:    ws.NewRooms(convs),
		accepted: make(chan *ws.Client, 4),
	}
	h.uc = NewChatUseCase(convs, users, h.presence, h.rooms, ratelimit.NewRateLimiter(limits), ChatUseCaseOptions{})

	upgrader := websocket.Upgrader{}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		userID := r.URL.Query().Get("user")

		c := ws.NewClient(conn, ws.ClientOptions{})
		c.Bind(&auth.Identity{UserID: userID, Username: userID})
		c.Start()
		h.uc.Connect(r.Context(), c)
		h.accepted <- c

		c.ReadLoop(r.Context(), func(ctx context.Context, message []byte) {
			h.uc.HandleMessage(ctx, c, message)
		})
		h.uc.Disconnect(context.Background(), c)
	}))
	t.Cleanup(h.server.Close)

	return h
}

type peer struct {
	t      *testing.T
	conn   *websocket.Conn
	client *ws.Client
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (h *harness) connect(t *testing.T, userID string) *peer {
	t.Helper()

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case c := <-h.accepted:
		return &peer{t: t, conn: conn, client: c}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not register %s", userID)
	}
	return nil
}

func (p *peer) send(event string, data interface{}) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(map[string]interface{}{"event": event, "data": data}))
}

func (p *peer) read(timeout time.Duration) (frame, error) {
	var f frame
	if err := p.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return f, err
	}
	_, raw, err := p.conn.ReadMessage()
	if err != nil {
		return f, err
	}
	return f, json.Unmarshal(raw, &f)
}

// expect reads until event arrives, skipping presence broadcasts.
func (p *peer) expect(event string, into interface{}) {
	p.t.Helper()
	seen := p.until(event, into)
	for _, e := range seen {
		if e != ws.EventUserStatus {
			p.t.Fatalf("unexpected %s before %s", e, event)
		}
	}
}

// until reads frames until event arrives and returns the other event names
// seen on the way.
func (p *peer) until(event string, into interface{}) []string {
	p.t.Helper()
	var seen []string
	for {
		f, err := p.read(2 * time.Second)
		require.NoError(p.t, err, "waiting for %s", event)
		if f.Event == event {
			if into != nil {
				require.NoError(p.t, json.Unmarshal(f.Data, into))
			}
			return seen
		}
		seen = append(seen, f.Event)
	}
}

// sync round-trips a ping so every frame the server sent before it has been
// read.
func (p *peer) sync() []string {
	p.t.Helper()
	p.send(ws.EventPing, nil)
	return p.until(ws.EventPong, nil)
}

func (h *harness) conversation(t *testing.T, a, b string) *entity.Conversation {
	t.Helper()
	conv, _, err := h.convs.FindOrCreateIndividual(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func without(events []string, drop string) []string {
	var out []string
	for _, e := range events {
		if e != drop {
			out = append(out, e)
		}
	}
	return out
}
