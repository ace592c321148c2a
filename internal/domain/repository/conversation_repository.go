package repository

import (
	"context"
	"time"

	"learnhub/internal/domain/entity"
)

// ConversationRepository is the conversation store. Implementations own the
// uniqueness of individual conversations per participant pair and the total
// order of messages within a conversation.
type ConversationRepository interface {
	// FindOrCreateIndividual returns the active individual conversation for
	// the unordered pair, creating it if needed. created is true only for the
	// call that actually created it.
	FindOrCreateIndividual(ctx context.Context, userA, userB string) (conv *entity.Conversation, created bool, err error)
	CreateGroup(ctx context.Context, creatorID, title string, participants []string) (*entity.Conversation, error)
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	UpdateStatus(ctx context.Context, id string, status entity.ConversationStatus) error

	AppendMessage(ctx context.Context, msg entity.NewMessage) (*entity.Message, error)
	// MarkRead marks every message from another sender that the reader has
	// not read yet and returns how many changed.
	MarkRead(ctx context.Context, conversationID, readerID string) (int, time.Time, error)
	// ListMessages returns messages newest-first with sequence < cursor
	// (cursor 0 means from the newest).
	ListMessages(ctx context.Context, conversationID string, cursor int64, limit int) (*entity.MessagePage, error)
	ListConversationsFor(ctx context.Context, userID string) ([]*entity.ConversationSummary, error)
}
