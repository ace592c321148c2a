package entity

import (
	"sort"
	"strings"
	"time"
)

type ConversationKind string

const (
	ConversationIndividual ConversationKind = "individual"
	ConversationGroup      ConversationKind = "group"
)

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
	ConversationDeleted  ConversationStatus = "deleted"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationActive, ConversationArchived, ConversationDeleted:
		return true
	}
	return false
}

type Conversation struct {
	ID            string             `json:"id" firestore:"id"`
	Kind          ConversationKind   `json:"kind" firestore:"kind"`
	Title         string             `json:"title,omitempty" firestore:"title,omitempty"`
	Participants  []string           `json:"participants" firestore:"participants"`
	Status        ConversationStatus `json:"status" firestore:"status"`
	PairKey       string             `json:"-" firestore:"pairKey,omitempty"`
	CreatedBy     string             `json:"createdBy,omitempty" firestore:"createdBy,omitempty"`
	LastMessageAt time.Time          `json:"lastMessageAt" firestore:"lastMessageAt"`
	LastSequence  int64              `json:"lastSequence" firestore:"lastSequence"`
	ReadSequence  map[string]int64   `json:"-" firestore:"readSequence"`
	// SentSinceRead counts each participant's own messages above their read
	// watermark.
	SentSinceRead map[string]int64   `json:"-" firestore:"sentSinceRead"`
	CreatedAt     time.Time          `json:"createdAt" firestore:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" firestore:"updatedAt"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) IsActive() bool {
	return c.Status == ConversationActive
}

// UnreadFor is the number of messages from other participants after the
// user's read watermark.
func (c *Conversation) UnreadFor(userID string) int64 {
	unread := c.LastSequence - c.ReadSequence[userID] - c.SentSinceRead[userID]
	if unread < 0 {
		return 0
	}
	return unread
}

// PairKey normalizes an unordered pair of user ids so (a, b) and (b, a)
// produce the same key.
func PairKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

// ConversationSummary is a conversation list entry: the conversation plus
// only its most recent message.
type ConversationSummary struct {
	*Conversation
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int64    `json:"unreadCount"`
}
