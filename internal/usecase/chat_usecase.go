package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"learnhub/internal/domain/entity"
	"learnhub/internal/domain/repository"
	"learnhub/internal/domain/service"
	"learnhub/internal/infrastructure/ratelimit"
	ws "learnhub/internal/infrastructure/websocket"
	"learnhub/pkg/errors"
	"learnhub/pkg/logger"
	"learnhub/pkg/utils"
)

const defaultEventTimeout = 10 * time.Second

type ChatUseCase struct {
	convRepo    repository.ConversationRepository
	userRepo    repository.UserRepository
	presence    *ws.Presence
	rooms       *ws.Rooms
	rateLimiter *ratelimit.RateLimiter
	attachments service.AttachmentStorage
	publisher   service.EventPublisher

	eventTimeout time.Duration
	convLocks    *keyedMutex
}

type ChatUseCaseOptions struct {
	// Attachments may be nil; attachment messages are then rejected.
	Attachments  service.AttachmentStorage
	Publisher    service.EventPublisher
	EventTimeout time.Duration
}

func NewChatUseCase(
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	presence *ws.Presence,
	rooms *ws.Rooms,
	rateLimiter *ratelimit.RateLimiter,
	opts ChatUseCaseOptions,
) *ChatUseCase {
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = defaultEventTimeout
	}
	if opts.Publisher == nil {
		opts.Publisher = noopPublisher{}
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.NewRateLimiter(nil)
	}

	return &ChatUseCase{
		convRepo:     convRepo,
		userRepo:     userRepo,
		presence:     presence,
		rooms:        rooms,
		rateLimiter:  rateLimiter,
		attachments:  opts.Attachments,
		publisher:    opts.Publisher,
		eventTimeout: opts.EventTimeout,
		convLocks:    newKeyedMutex(),
	}
}

type SendMessageInput struct {
	ConversationID string
	RecipientID    string
	Content        string
	Type           string
	AttachmentRef  string
	ClientID       string
}

type CreateGroupInput struct {
	Title          string
	ParticipantIDs []string
}

// StartConversation finds or creates the individual conversation between
// userID and recipientID.
func (uc *ChatUseCase) StartConversation(ctx context.Context, userID, recipientID string) (*entity.Conversation, bool, error) {
	if err := uc.allow(userID, ratelimit.ActionCreateConversation); err != nil {
		return nil, false, err
	}
	return uc.findOrCreate(ctx, userID, recipientID)
}

func (uc *ChatUseCase) findOrCreate(ctx context.Context, userID, recipientID string) (*entity.Conversation, bool, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, false, errors.Validation("recipient_id is required")
	}
	if recipientID == userID {
		return nil, false, errors.Validation("cannot start a conversation with yourself")
	}
	if err := uc.ensureAccount(ctx, recipientID); err != nil {
		return nil, false, err
	}

	conv, created, err := uc.convRepo.FindOrCreateIndividual(ctx, userID, recipientID)
	if err != nil {
		return nil, false, err
	}
	if created {
		logger.Info("Chat: conversation %s created between %s and %s", conv.ID, userID, recipientID)
	}
	return conv, created, nil
}

func (uc *ChatUseCase) CreateGroup(ctx context.Context, userID string, input CreateGroupInput) (*entity.Conversation, error) {
	if err := uc.allow(userID, ratelimit.ActionCreateConversation); err != nil {
		return nil, err
	}
	for _, id := range input.ParticipantIDs {
		id = strings.TrimSpace(id)
		if id == "" || id == userID {
			continue
		}
		if err := uc.ensureAccount(ctx, id); err != nil {
			return nil, err
		}
	}
	return uc.convRepo.CreateGroup(ctx, userID, input.Title, input.ParticipantIDs)
}

func (uc *ChatUseCase) GetConversation(ctx context.Context, userID, conversationID string) (*entity.Conversation, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errors.Authorization("not a participant of this conversation", nil)
	}
	return conv, nil
}

func (uc *ChatUseCase) ListConversations(ctx context.Context, userID string) ([]*entity.ConversationSummary, error) {
	return uc.convRepo.ListConversationsFor(ctx, userID)
}

func (uc *ChatUseCase) ListMessages(ctx context.Context, userID, conversationID string, cursor int64, limit int) (*entity.MessagePage, error) {
	if _, err := uc.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if cursor < 0 {
		return nil, errors.Validation("cursor must not be negative")
	}
	return uc.convRepo.ListMessages(ctx, conversationID, cursor, utils.ClampLimit(limit))
}

// SendMessage persists a message and fans it out: newMessage to the room,
// messageNotification to online participants who are not viewing it.
func (uc *ChatUseCase) SendMessage(ctx context.Context, userID string, input SendMessageInput) (*entity.Message, error) {
	if err := uc.allow(userID, ratelimit.ActionSendMessage); err != nil {
		return nil, err
	}

	conversationID := input.ConversationID
	if conversationID == "" {
		conv, _, err := uc.findOrCreate(ctx, userID, input.RecipientID)
		if err != nil {
			return nil, err
		}
		conversationID = conv.ID
	}

	attachment, err := uc.resolveAttachment(ctx, userID, input.AttachmentRef)
	if err != nil {
		return nil, err
	}

	unlock := uc.convLocks.Lock(conversationID)
	defer unlock()

	msg, err := uc.convRepo.AppendMessage(ctx, entity.NewMessage{
		ConversationID: conversationID,
		SenderID:       userID,
		Body:           input.Content,
		Type:           entity.MessageType(input.Type),
		Attachment:     attachment,
	})
	if err != nil {
		return nil, err
	}

	uc.deliver(ctx, msg, input.ClientID)
	return msg, nil
}

// deliver runs after persistence; failures here are logged only.
func (uc *ChatUseCase) deliver(ctx context.Context, msg *entity.Message, clientID string) {
	payload := ws.MessagePayload{ConversationID: msg.ConversationID, Message: msg, ClientID: clientID}
	uc.rooms.Broadcast(msg.ConversationID, ws.EventNewMessage, payload)

	conv, err := uc.convRepo.GetByID(ctx, msg.ConversationID)
	if err != nil {
		logger.Error("Chat: failed to load conversation %s for notifications: %v", msg.ConversationID, err)
		return
	}

	notification := ws.MessagePayload{ConversationID: msg.ConversationID, Message: msg}
	for _, participant := range conv.Participants {
		if participant == msg.SenderID || uc.rooms.HasMember(conv.ID, participant) {
			continue
		}
		uc.presence.SendTo(participant, ws.EventMessageNotification, notification)
	}

	if err := uc.publisher.PublishMessageSent(ctx, conv, msg); err != nil {
		logger.Error("Chat: failed to publish message %s: %v", msg.ID, err)
	}
}

func (uc *ChatUseCase) resolveAttachment(ctx context.Context, userID, ref string) (*entity.Attachment, error) {
	if ref == "" {
		return nil, nil
	}
	if uc.attachments == nil {
		return nil, errors.Validation("attachments are not enabled")
	}
	if !strings.HasPrefix(ref, service.AttachmentRefPrefix(userID)) {
		return nil, errors.Authorization("attachment does not belong to sender", nil)
	}
	return uc.attachments.Describe(ctx, ref)
}

// MarkRead marks the conversation read for userID and tells the room when
// anything changed.
func (uc *ChatUseCase) MarkRead(ctx context.Context, userID, conversationID string) (int, error) {
	count, readAt, err := uc.convRepo.MarkRead(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	uc.rooms.Broadcast(conversationID, ws.EventMessagesRead, ws.ReadPayload{
		ConversationID: conversationID,
		UserID:         userID,
		Count:          count,
		ReadAt:         readAt,
	})
	return count, nil
}

func (uc *ChatUseCase) RequestUploadURL(ctx context.Context, userID, fileName, mimeType string) (*service.UploadTicket, error) {
	if uc.attachments == nil {
		return nil, errors.Validation("attachments are not enabled")
	}
	return uc.attachments.SignedUploadURL(ctx, userID, fileName, mimeType)
}

func (uc *ChatUseCase) OnlineUsers() []string {
	return uc.presence.OnlineUsers()
}

// UpdateConversationStatus is the moderation path. Room members stay joined
// but further sends fail with CONVERSATION_INACTIVE.
func (uc *ChatUseCase) UpdateConversationStatus(ctx context.Context, adminID, conversationID string, status entity.ConversationStatus) (*entity.Conversation, error) {
	if !status.Valid() {
		return nil, errors.Validation(fmt.Sprintf("invalid status: %s", status))
	}
	if err := uc.convRepo.UpdateStatus(ctx, conversationID, status); err != nil {
		return nil, err
	}
	logger.Info("Chat: conversation %s set to %s by %s", conversationID, status, adminID)
	return uc.convRepo.GetByID(ctx, conversationID)
}

func (uc *ChatUseCase) ensureAccount(ctx context.Context, userID string) error {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsDisabled() {
		return errors.Validation(fmt.Sprintf("user %s cannot receive messages", userID))
	}
	return nil
}

func (uc *ChatUseCase) allow(userID, action string) error {
	allowed, wait := uc.rateLimiter.Allow(userID, action)
	if !allowed {
		return errors.TooManyRequests(fmt.Sprintf("rate limit exceeded, retry in %s", wait.Round(time.Millisecond)))
	}
	return nil
}

type noopPublisher struct{}

func (noopPublisher) PublishMessageSent(ctx context.Context, conv *entity.Conversation, msg *entity.Message) error {
	return nil
}

func (noopPublisher) Close() error { return nil }
