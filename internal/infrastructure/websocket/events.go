package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"learnhub/internal/domain/entity"
	"learnhub/pkg/errors"
	"learnhub/pkg/validation"
)

// Inbound event names.
const (
	EventAuthenticate      = "authenticate"
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventSendMessage       = "sendMessage"
	EventTyping            = "typing"
	EventMarkAsRead        = "markAsRead"
	EventPing              = "ping"
)

// Outbound event names.
const (
	EventAuthenticated       = "authenticated"
	EventNewMessage          = "newMessage"
	EventMessageNotification = "messageNotification"
	EventUserTyping          = "userTyping"
	EventMessagesRead        = "messagesRead"
	EventUserStatus          = "userStatus"
	EventChatError           = "chatError"
	EventConversationJoined  = "conversationJoined"
	EventConversationLeft    = "conversationLeft"
	EventPong                = "pong"
)

// InboundEnvelope is the wire form of every client frame.
type InboundEnvelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

type OutboundEnvelope struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// InboundEvent is the closed set of client events. Only types in this file
// implement it.
type InboundEvent interface {
	EventName() string
	inbound()
}

type AuthenticateEvent struct {
	Token string `json:"token" validate:"required"`
}

type JoinConversationEvent struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

type LeaveConversationEvent struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

type AttachmentRef struct {
	StorageRef string `json:"storageRef" validate:"required"`
}

type SendMessageEvent struct {
	ConversationID string         `json:"conversationId" validate:"required_without=RecipientID"`
	RecipientID    string         `json:"recipientId"`
	Content        string         `json:"content"`
	Type           string         `json:"type" validate:"omitempty,oneof=text image file"`
	Attachment     *AttachmentRef `json:"attachment"`
	// ClientID is echoed back on newMessage so a sender can reconcile its
	// optimistic copy.
	ClientID string `json:"clientId,omitempty" validate:"max=64"`
}

type TypingEvent struct {
	ConversationID string `json:"conversationId" validate:"required"`
	IsTyping       bool   `json:"isTyping"`
}

type MarkAsReadEvent struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

type PingEvent struct{}

func (AuthenticateEvent) EventName() string      { return EventAuthenticate }
func (JoinConversationEvent) EventName() string  { return EventJoinConversation }
func (LeaveConversationEvent) EventName() string { return EventLeaveConversation }
func (SendMessageEvent) EventName() string       { return EventSendMessage }
func (TypingEvent) EventName() string            { return EventTyping }
func (MarkAsReadEvent) EventName() string        { return EventMarkAsRead }
func (PingEvent) EventName() string              { return EventPing }

func (AuthenticateEvent) inbound()      {}
func (JoinConversationEvent) inbound()  {}
func (LeaveConversationEvent) inbound() {}
func (SendMessageEvent) inbound()       {}
func (TypingEvent) inbound()            {}
func (MarkAsReadEvent) inbound()        {}
func (PingEvent) inbound()              {}

// DecodeInbound parses and validates one client frame. Every failure is a
// VALIDATION_ERROR.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var env InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Validation("malformed event")
	}

	var event InboundEvent
	switch env.Event {
	case EventAuthenticate:
		var e AuthenticateEvent
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		event = e
	case EventJoinConversation:
		id, err := decodeConversationID(env.Data)
		if err != nil {
			return nil, err
		}
		event = JoinConversationEvent{ConversationID: id}
	case EventLeaveConversation:
		id, err := decodeConversationID(env.Data)
		if err != nil {
			return nil, err
		}
		event = LeaveConversationEvent{ConversationID: id}
	case EventSendMessage:
		var e SendMessageEvent
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		event = e
	case EventTyping:
		var e TypingEvent
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		event = e
	case EventMarkAsRead:
		id, err := decodeConversationID(env.Data)
		if err != nil {
			return nil, err
		}
		event = MarkAsReadEvent{ConversationID: id}
	case EventPing:
		return PingEvent{}, nil
	case "":
		return nil, errors.Validation("event name is required")
	default:
		return nil, errors.Validation(fmt.Sprintf("unknown event: %s", env.Event))
	}

	if err := validation.Check(event); err != nil {
		return nil, err
	}
	return event, nil
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Validation("malformed event data")
	}
	return nil
}

// decodeConversationID accepts either a bare id string or
// {"conversationId": "..."}.
func decodeConversationID(data json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return "", errors.Validation("malformed event data")
		}
		return id, nil
	}

	var payload struct {
		ConversationID string `json:"conversationId"`
	}
	if err := decodeData(trimmed, &payload); err != nil {
		return "", err
	}
	return payload.ConversationID, nil
}

// Outbound payloads.

type MessagePayload struct {
	ConversationID string          `json:"conversationId"`
	Message        *entity.Message `json:"message"`
	ClientID       string          `json:"clientId,omitempty"`
}

type TypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type ReadPayload struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Count          int       `json:"count"`
	ReadAt         time.Time `json:"readAt"`
}

type StatusPayload struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type ConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// ErrorFor converts err into a chatError payload. Internal failures get a
// generic message.
func ErrorFor(event string, err error) ErrorPayload {
	appErr := errors.As(err)
	message := appErr.Message
	if appErr.Code == errors.CodeInternal {
		message = "An unexpected error occurred"
	}
	return ErrorPayload{Code: appErr.Code, Message: message, Event: event}
}
