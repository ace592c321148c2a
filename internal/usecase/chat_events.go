package usecase

import (
	"context"

	"learnhub/internal/infrastructure/ratelimit"
	ws "learnhub/internal/infrastructure/websocket"
	"learnhub/pkg/errors"
	"learnhub/pkg/logger"
)

// Connect registers an authenticated client. Any previous session of the same
// user is closed.
func (uc *ChatUseCase) Connect(ctx context.Context, c *ws.Client) {
	uc.presence.RecordConnect(ctx, c)
	c.MarkIdle()
	logger.Info("WebSocket: user %s connected (%s)", c.UserID(), c.ID)
}

// Disconnect is safe to call more than once. Presence goes first so a stale
// session never announces a user offline after a newer one registered.
func (uc *ChatUseCase) Disconnect(ctx context.Context, c *ws.Client) {
	uc.presence.RecordDisconnect(ctx, c)
	uc.rooms.RemoveClient(c)
	logger.Info("WebSocket: user %s disconnected (%s)", c.UserID(), c.ID)
}

// HandleMessage decodes one raw frame and dispatches it. Errors go back to the
// originating client only.
func (uc *ChatUseCase) HandleMessage(ctx context.Context, c *ws.Client, raw []byte) {
	event, err := ws.DecodeInbound(raw)
	if err != nil {
		uc.replyError(c, "", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, uc.eventTimeout)
	defer cancel()

	if err := uc.HandleEvent(ctx, c, event); err != nil {
		uc.replyError(c, event.EventName(), err)
	}
}

func (uc *ChatUseCase) HandleEvent(ctx context.Context, c *ws.Client, event ws.InboundEvent) error {
	switch e := event.(type) {
	case ws.AuthenticateEvent:
		return errors.Validation("connection is already authenticated")
	case ws.JoinConversationEvent:
		return uc.joinConversation(ctx, c, e)
	case ws.LeaveConversationEvent:
		uc.rooms.Leave(c, e.ConversationID)
		return c.SendEvent(ws.EventConversationLeft, ws.ConversationPayload{ConversationID: e.ConversationID})
	case ws.SendMessageEvent:
		return uc.sendMessage(ctx, c, e)
	case ws.TypingEvent:
		return uc.typing(c, e)
	case ws.MarkAsReadEvent:
		_, err := uc.MarkRead(ctx, c.UserID(), e.ConversationID)
		return err
	case ws.PingEvent:
		return c.SendEvent(ws.EventPong, nil)
	}
	return errors.Validation("unknown event: " + event.EventName())
}

func (uc *ChatUseCase) joinConversation(ctx context.Context, c *ws.Client, e ws.JoinConversationEvent) error {
	if err := uc.allow(c.UserID(), ratelimit.ActionJoin); err != nil {
		return err
	}
	if err := uc.rooms.Join(ctx, c, e.ConversationID); err != nil {
		return err
	}
	return c.SendEvent(ws.EventConversationJoined, ws.ConversationPayload{ConversationID: e.ConversationID})
}

func (uc *ChatUseCase) sendMessage(ctx context.Context, c *ws.Client, e ws.SendMessageEvent) error {
	input := SendMessageInput{
		ConversationID: e.ConversationID,
		RecipientID:    e.RecipientID,
		Content:        e.Content,
		Type:           e.Type,
		ClientID:       e.ClientID,
	}
	if e.Attachment != nil {
		input.AttachmentRef = e.Attachment.StorageRef
	}

	msg, err := uc.SendMessage(ctx, c.UserID(), input)
	if err != nil {
		if e.ConversationID != "" && (errors.Is(err, errors.CodeNotParticipant) || errors.Is(err, errors.CodeConversationInactive)) {
			uc.rooms.Leave(c, e.ConversationID)
		}
		return err
	}

	// First contact: the sender is not in the new conversation's room yet,
	// so hand the message back directly.
	if current, ok := c.Room(); !ok || current != msg.ConversationID {
		return c.SendEvent(ws.EventNewMessage, ws.MessagePayload{
			ConversationID: msg.ConversationID,
			Message:        msg,
			ClientID:       e.ClientID,
		})
	}
	return nil
}

// typing is fire-and-forget: rate-limited events are dropped silently.
func (uc *ChatUseCase) typing(c *ws.Client, e ws.TypingEvent) error {
	if current, ok := c.Room(); !ok || current != e.ConversationID {
		return errors.Authorization("join the conversation before sending typing events", nil)
	}
	if allowed, _ := uc.rateLimiter.Allow(c.UserID(), ratelimit.ActionTyping); !allowed {
		return nil
	}

	uc.rooms.BroadcastExcept(e.ConversationID, ws.EventUserTyping, ws.TypingPayload{
		UserID:         c.UserID(),
		ConversationID: e.ConversationID,
		IsTyping:       e.IsTyping,
	}, c)
	return nil
}

func (uc *ChatUseCase) replyError(c *ws.Client, event string, err error) {
	payload := ws.ErrorFor(event, err)
	if payload.Code == errors.CodeInternal {
		logger.Error("WebSocket: %s failed for user %s: %v", event, c.UserID(), err)
	}
	if sendErr := c.SendEvent(ws.EventChatError, payload); sendErr != nil {
		logger.Debug("WebSocket: could not deliver error to %s: %v", c.UserID(), sendErr)
	}
}
