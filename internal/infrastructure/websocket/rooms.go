package websocket

import (
	"context"
	"sort"
	"sync"

	"learnhub/internal/domain/entity"
	"learnhub/pkg/errors"
	"learnhub/pkg/logger"
)

// ConversationLookup is the part of the conversation store rooms need to
// authorize a join.
type ConversationLookup interface {
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
}

type room struct {
	mu      sync.Mutex
	members map[*Client]struct{}
	// closed is set when the room is dropped from the index; a joiner holding
	// a stale pointer must look it up again.
	closed bool
}

// Rooms groups clients by the conversation they are viewing. A client is in
// at most one room. Each room has its own lock; the index lock is only held
// to find or drop a room.
type Rooms struct {
	mu    sync.Mutex
	rooms map[string]*room
	store ConversationLookup
}

func NewRooms(store ConversationLookup) *Rooms {
	return &Rooms{
		rooms: make(map[string]*room),
		store: store,
	}
}

// Authorize checks that the client's user may view conversationID.
func (r *Rooms) Authorize(ctx context.Context, c *Client, conversationID string) (*entity.Conversation, error) {
	conv, err := r.store.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(c.UserID()) {
		return nil, errors.Authorization("not a participant of this conversation", nil)
	}
	if !conv.IsActive() {
		return nil, errors.ConversationInactive(conversationID)
	}
	return conv, nil
}

// Join re-checks participation against the store, leaves the client's
// previous room and adds it to conversationID.
func (r *Rooms) Join(ctx context.Context, c *Client, conversationID string) error {
	if _, err := r.Authorize(ctx, c, conversationID); err != nil {
		return err
	}

	if current := c.currentRoom(); current != "" && current != conversationID {
		r.Leave(c, current)
	}

	for {
		rm := r.getOrCreate(conversationID)

		rm.mu.Lock()
		if rm.closed {
			rm.mu.Unlock()
			continue
		}
		rm.members[c] = struct{}{}
		rm.mu.Unlock()
		break
	}

	c.enterRoom(conversationID)

	// A client closed while joining may have missed RemoveClient.
	select {
	case <-c.Done():
		r.Leave(c, conversationID)
		return ErrClientClosed
	default:
	}
	return nil
}

// Leave removes c from conversationID. It is a no-op if c is not a member.
func (r *Rooms) Leave(c *Client, conversationID string) {
	c.exitRoom(conversationID)

	rm := r.get(conversationID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.members[c]; !ok {
		return
	}
	delete(rm.members, c)
	if len(rm.members) == 0 {
		rm.closed = true
		r.mu.Lock()
		if r.rooms[conversationID] == rm {
			delete(r.rooms, conversationID)
		}
		r.mu.Unlock()
	}
}

// RemoveClient drops c from whatever room it is in, including after c has
// been closed.
func (r *Rooms) RemoveClient(c *Client) {
	if current := c.currentRoom(); current != "" {
		r.Leave(c, current)
	}
}

// Broadcast delivers an event to every member. An empty room is not an error.
func (r *Rooms) Broadcast(conversationID, event string, data interface{}) int {
	return r.BroadcastExcept(conversationID, event, data, nil)
}

// BroadcastExcept delivers an event to every member other than exclude.
func (r *Rooms) BroadcastExcept(conversationID, event string, data interface{}, exclude *Client) int {
	rm := r.get(conversationID)
	if rm == nil {
		return 0
	}

	payload, err := Encode(event, data)
	if err != nil {
		logger.Error("WebSocket: failed to encode %s: %v", event, err)
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	delivered := 0
	for c := range rm.members {
		if c == exclude {
			continue
		}
		if c.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// Members returns the user ids currently in the room, sorted.
func (r *Rooms) Members(conversationID string) []string {
	rm := r.get(conversationID)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	ids := make([]string, 0, len(rm.members))
	for c := range rm.members {
		ids = append(ids, c.UserID())
	}
	rm.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// HasMember reports whether userID has a live connection in the room.
func (r *Rooms) HasMember(conversationID, userID string) bool {
	rm := r.get(conversationID)
	if rm == nil {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	for c := range rm.members {
		if c.UserID() == userID && c.State() != StateDisconnected {
			return true
		}
	}
	return false
}

func (r *Rooms) get(conversationID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[conversationID]
}

func (r *Rooms) getOrCreate(conversationID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[conversationID]
	if !ok {
		rm = &room{members: make(map[*Client]struct{})}
		r.rooms[conversationID] = rm
	}
	return rm
}
