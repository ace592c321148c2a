package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"learnhub/pkg/logger"
)

// StatusRecorder persists online state and last-seen for the account
// directory.
type StatusRecorder interface {
	UpdatePresence(ctx context.Context, id string, online bool, lastSeen time.Time) error
}

// Presence maps each online user to their single active connection. A new
// connection for the same user replaces and closes the old one.
type Presence struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	recorder StatusRecorder
	timeout  time.Duration
}

func NewPresence(recorder StatusRecorder, timeout time.Duration) *Presence {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Presence{
		clients:  make(map[string]*Client),
		recorder: recorder,
		timeout:  timeout,
	}
}

// RecordConnect registers c as its user's connection and announces the user
// online to everyone.
func (p *Presence) RecordConnect(ctx context.Context, c *Client) {
	userID := c.UserID()

	p.mu.Lock()
	previous := p.clients[userID]
	p.clients[userID] = c
	p.mu.Unlock()

	if previous != nil && previous != c {
		logger.Info("WebSocket: replacing session for user %s", userID)
		previous.Close(CloseSessionReplaced, "session replaced")
	}

	p.Broadcast(EventUserStatus, StatusPayload{UserID: userID, Online: true})
	p.record(ctx, userID, true)
}

// RecordDisconnect removes c only if it is still the user's registered
// connection. It reports whether an entry was removed.
func (p *Presence) RecordDisconnect(ctx context.Context, c *Client) bool {
	userID := c.UserID()

	p.mu.Lock()
	current, ok := p.clients[userID]
	removed := ok && current == c
	if removed {
		delete(p.clients, userID)
	}
	p.mu.Unlock()

	if !removed {
		return false
	}

	now := time.Now().UTC()
	p.Broadcast(EventUserStatus, StatusPayload{UserID: userID, Online: false, LastSeen: &now})
	p.record(ctx, userID, false)
	return true
}

func (p *Presence) Lookup(userID string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[userID]
	return c, ok
}

func (p *Presence) IsOnline(userID string) bool {
	_, ok := p.Lookup(userID)
	return ok
}

// OnlineUsers returns the ids of connected users, sorted.
func (p *Presence) OnlineUsers() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// SendTo delivers an event to userID if online.
func (p *Presence) SendTo(userID, event string, data interface{}) bool {
	c, ok := p.Lookup(userID)
	if !ok {
		return false
	}
	return c.SendEvent(event, data) == nil
}

// Broadcast delivers an event to every connected client.
func (p *Presence) Broadcast(event string, data interface{}) int {
	payload, err := Encode(event, data)
	if err != nil {
		logger.Error("WebSocket: failed to encode %s: %v", event, err)
		return 0
	}

	p.mu.RLock()
	targets := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		targets = append(targets, c)
	}
	p.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// CloseAll disconnects every client, used on shutdown.
func (p *Presence) CloseAll() {
	p.mu.RLock()
	targets := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		targets = append(targets, c)
	}
	p.mu.RUnlock()

	for _, c := range targets {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (p *Presence) record(ctx context.Context, userID string, online bool) {
	if p.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.recorder.UpdatePresence(ctx, userID, online, time.Now().UTC()); err != nil {
		logger.Warn("Presence: failed to record status for user %s: %v", userID, err)
	}
}
