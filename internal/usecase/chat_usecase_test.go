package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/adapter/repository"
	"learnhub/internal/domain/entity"
	"learnhub/internal/domain/service"
	ws "learnhub/internal/infrastructure/websocket"
	"learnhub/pkg/errors"
)

type fakeAttachments struct {
	objects map[string]*entity.Attachment
}

func (f *fakeAttachments) SignedUploadURL(ctx context.Context, ownerID, fileName, mimeType string) (*service.UploadTicket, error) {
	return &service.UploadTicket{
		UploadURL:  "https://storage.example/upload",
		StorageRef: service.AttachmentRefPrefix(ownerID) + fileName,
		ExpiresAt:  time.Now().Add(time.Minute),
	}, nil
}

func (f *fakeAttachments) Describe(ctx context.Context, ref string) (*entity.Attachment, error) {
	a, ok := f.objects[ref]
	if !ok {
		return nil, errors.NotFound("Attachment", nil)
	}
	return a, nil
}

func (f *fakeAttachments) Close() error { return nil }

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*entity.Message
}

func (p *recordingPublisher) PublishMessageSent(ctx context.Context, conv *entity.Conversation, msg *entity.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newTestUseCase(t *testing.T, opts ChatUseCaseOptions) *ChatUseCase {
	t.Helper()
	users := repository.NewMemoryUserRepository()
	for _, id := range []string{"alice", "bob", "carol"} {
		users.Put(&entity.User{ID: id, Username: id})
	}
	users.Put(&entity.User{ID: "banned", Username: "banned", Status: entity.UserStatusDisabled})

	convs := repository.NewMemoryConversationRepository()
	return NewChatUseCase(convs, users, ws.NewPresence(nil, 0), ws.NewRooms(convs), nil, opts)
}

func TestStartConversationIsIdempotent(t *testing.T) {
	uc := newTestUseCase(t, ChatUseCaseOptions{})
	ctx := context.Background()

	first, created, err := uc.StartConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := uc.StartConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestStartConversationRejections(t *testing.T) {
	uc := newTestUseCase(t, ChatUseCaseOptions{})

	tests := []struct {
		name      string
		recipient string
		code      string
	}{
		{"empty", "  ", errors.CodeValidation},
		{"self", "alice", errors.CodeValidation},
		{"unknown", "ghost", errors.CodeNotFound},
		{"disabled", "banned", errors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := uc.StartConversation(context.Background(), "alice", tt.recipient)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestCreateGroupChecksAccounts(t *testing.T) {
	uc := newTestUseCase(t, ChatUseCaseOptions{})
	ctx := context.Background()

	_, err := uc.CreateGroup(ctx, "alice", CreateGroupInput{Title: "x", ParticipantIDs: []string{"bob", "ghost"}})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	group, err := uc.CreateGroup(ctx, "alice", CreateGroupInput{Title: "cohort", ParticipantIDs: []string{"bob", "carol"}})
	require.NoError(t, err)
	assert.Equal(t, entity.ConversationGroup, group.Kind)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, group.Participants)
}

func TestConversationReadsRequireParticipation(t *testing.T) {
	uc := newTestUseCase(t, ChatUseCaseOptions{})
	ctx := context.Background()
	conv, _, err := uc.StartConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = uc.GetConversation(ctx, "carol", conv.ID)
	assert.True(t, errors.Is(err, errors.CodeAuthorization))

	_, err = uc.ListMessages(ctx, "carol", conv.ID, 0, 10)
	assert.True(t, errors.Is(err, errors.CodeAuthorization))

	_, err = uc.ListMessages(ctx, "alice", conv.ID, -1, 10)
	assert.True(t, errors.Is(err, errors.CodeValidation))

	page, err := uc.ListMessages(ctx, "bob", conv.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
}

func TestSendMessagePublishes(t *testing.T) {
	publisher := &recordingPublisher{}
	uc := newTestUseCase(t, ChatUseCaseOptions{Publisher: publisher})
	ctx := context.Background()

	msg, err := uc.SendMessage(ctx, "alice", SendMessageInput{RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, msg.ID, publisher.messages[0].ID)

	count, err := uc.MarkRead(ctx, "bob", msg.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = uc.MarkRead(ctx, "bob", msg.ConversationID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSendMessageAttachments(t *testing.T) {
	ref := service.AttachmentRefPrefix("alice") + "id/notes.pdf"
	storage := &fakeAttachments{objects: map[string]*entity.Attachment{
		ref: {Name: "notes.pdf", StorageRef: ref, MimeType: "application/pdf", SizeBytes: 2048},
	}}
	uc := newTestUseCase(t, ChatUseCaseOptions{Attachments: storage})
	ctx := context.Background()
	conv, _, err := uc.StartConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	msg, err := uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, AttachmentRef: ref})
	require.NoError(t, err)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, entity.MessageFile, msg.Type)
	assert.Equal(t, int64(2048), msg.Attachment.SizeBytes)

	// bob cannot reference alice's upload
	_, err = uc.SendMessage(ctx, "bob", SendMessageInput{ConversationID: conv.ID, AttachmentRef: ref})
	assert.True(t, errors.Is(err, errors.CodeAuthorization))

	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, AttachmentRef: service.AttachmentRefPrefix("alice") + "missing"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	ticket, err := uc.RequestUploadURL(ctx, "alice", "notes.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, service.AttachmentRefPrefix("alice")+"notes.pdf", ticket.StorageRef)
}

func TestAttachmentsDisabled(t *testing.T) {
	uc := newTestUseCase(t, ChatUseCaseOptions{})
	ctx := context.Background()

	_, err := uc.RequestUploadURL(ctx, "alice", "a.png", "image/png")
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{RecipientID: "bob", AttachmentRef: "chat/alice/a.png"})
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestUpdateConversationStatus(t *testing.T) {
	uc := newTestUseCase(t, ChatUseCaseOptions{})
	ctx := context.Background()
	conv, _, err := uc.StartConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = uc.UpdateConversationStatus(ctx, "admin", conv.ID, "frozen")
	assert.True(t, errors.Is(err, errors.CodeValidation))

	updated, err := uc.UpdateConversationStatus(ctx, "admin", conv.ID, entity.ConversationArchived)
	require.NoError(t, err)
	assert.Equal(t, entity.ConversationArchived, updated.Status)

	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "still there?"})
	assert.True(t, errors.Is(err, errors.CodeConversationInactive))

	// archiving frees the pair for a fresh conversation
	fresh, created, err := uc.StartConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, conv.ID, fresh.ID)
}
