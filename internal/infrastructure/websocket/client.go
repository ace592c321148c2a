package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"learnhub/internal/infrastructure/auth"
	"learnhub/pkg/logger"
)

const (
	CloseSessionReplaced = 4001
	CloseAuthFailed      = 4401
)

var (
	ErrClientClosed   = stderrors.New("connection closed")
	ErrSendBufferFull = stderrors.New("send buffer full")
)

type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticated
	StateIdle
	StateInRoom
	StateDisconnected
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateIdle:
		return "idle"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

type ClientOptions struct {
	WriteWait      time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// pongWait must exceed the ping interval so one late pong does not drop the
// connection.
func (o ClientOptions) pongWait() time.Duration {
	return o.PingInterval * 2
}

// Client is one websocket connection. Writes go through a bounded buffer
// drained by a single write loop; a client that cannot keep up is closed.
type Client struct {
	ID   string
	conn *websocket.Conn
	opts ClientOptions

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once

	mu       sync.Mutex
	identity *auth.Identity
	state    ClientState
	room     string
}

func NewClient(conn *websocket.Conn, opts ClientOptions) *Client {
	opts = opts.withDefaults()
	return &Client{
		ID:    uuid.New().String(),
		conn:  conn,
		opts:  opts,
		send:  make(chan []byte, opts.SendBuffer),
		done:  make(chan struct{}),
		state: StateConnecting,
	}
}

func (c *Client) Identity() *auth.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Client) UserID() string {
	if id := c.Identity(); id != nil {
		return id.UserID
	}
	return ""
}

// Bind attaches the authenticated identity for the rest of the connection.
func (c *Client) Bind(identity *auth.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnecting {
		c.identity = identity
		c.state = StateAuthenticated
	}
}

// MarkIdle moves a freshly registered client out of the authenticated state.
func (c *Client) MarkIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateAuthenticated {
		c.state = StateIdle
	}
}

func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room returns the conversation the client currently has joined.
func (c *Client) Room() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.state == StateInRoom
}

// currentRoom is the last room entered, whatever the state. Disconnected
// clients still report it so Rooms can drop them.
func (c *Client) currentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) enterRoom(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = conversationID
	if c.state != StateDisconnected {
		c.state = StateInRoom
	}
}

func (c *Client) exitRoom(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != conversationID {
		return
	}
	c.room = ""
	if c.state == StateInRoom {
		c.state = StateIdle
	}
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Start launches the write loop.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		go c.writeLoop()
	})
}

// Send enqueues payload without blocking.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		logger.With("client_id", c.ID, "user_id", c.UserID()).Warnf("WebSocket: send buffer full, closing connection")
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return ErrSendBufferFull
	}
}

func (c *Client) SendEvent(event string, data interface{}) error {
	payload, err := Encode(event, data)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// WriteEvent writes directly to the socket. Only valid before Start, while
// the caller is the sole writer.
func (c *Client) WriteEvent(event string, data interface{}) error {
	payload, err := Encode(event, data)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, payload)
}

// Close sends a close frame with code and reason and tears the socket down.
// Safe to call more than once and from any goroutine.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()

		close(c.done)
		if c.conn == nil {
			return
		}
		deadline := time.Now().Add(c.opts.WriteWait)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.conn.Close()
	})
}

// ReadFirst reads one frame within timeout. Used to receive the
// authenticate event before the connection is trusted.
func (c *Client) ReadFirst(timeout time.Duration) ([]byte, error) {
	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	_, message, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return message, c.conn.SetReadDeadline(time.Time{})
}

// ReadLoop hands each inbound frame to handle, in order, until the
// connection fails or ctx ends. It always leaves the client closed.
func (c *Client) ReadLoop(ctx context.Context, handle func(ctx context.Context, message []byte)) {
	defer c.Close(websocket.CloseNormalClosure, "")

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	})

	go func() {
		select {
		case <-ctx.Done():
			c.Close(websocket.CloseGoingAway, "server shutting down")
		case <-c.done:
		}
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.With("client_id", c.ID, "user_id", c.UserID()).Warnf("WebSocket: read error: %v", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
		handle(ctx, message)
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.Close(websocket.CloseGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseGoingAway, "write failed")
				return
			}
		}
	}
}

func (c *Client) write(messageType int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, payload)
}

// Encode builds an outbound frame.
func Encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(OutboundEnvelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}
