package entity

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

type Attachment struct {
	Name       string `json:"name" firestore:"name"`
	StorageRef string `json:"storageRef" firestore:"storageRef"`
	MimeType   string `json:"mimeType" firestore:"mimeType"`
	SizeBytes  int64  `json:"sizeBytes" firestore:"sizeBytes"`
}

type Message struct {
	ID             string               `json:"id" firestore:"id"`
	ConversationID string               `json:"conversationId" firestore:"conversationId"`
	SenderID       string               `json:"senderId" firestore:"senderId"`
	Body           string               `json:"body" firestore:"body"`
	Type           MessageType          `json:"type" firestore:"type"`
	Attachment     *Attachment          `json:"attachment,omitempty" firestore:"attachment,omitempty"`
	Sequence       int64                `json:"sequence" firestore:"sequence"`
	CreatedAt      time.Time            `json:"createdAt" firestore:"createdAt"`
	ReadBy         map[string]time.Time `json:"readBy" firestore:"readBy"`
}

// NewMessage is the input to ConversationRepository.AppendMessage. Id,
// sequence and timestamp are always assigned by the store.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Body           string
	Type           MessageType
	Attachment     *Attachment
}

type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor int64      `json:"nextCursor,omitempty"`
}
