package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"learnhub/internal/domain/entity"
	"learnhub/internal/domain/repository"
	"learnhub/pkg/errors"
)

// memoryConversationRepository keeps everything in process memory behind one
// lock. It backs local development when no Firebase project is configured
// and the package tests; it gives no cross-process guarantees.
type memoryConversationRepository struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	pairs         map[string]string
	messages      map[string][]*entity.Message
	now           func() time.Time
}

func NewMemoryConversationRepository() repository.ConversationRepository {
	return newMemoryConversationRepository(time.Now)
}

func newMemoryConversationRepository(now func() time.Time) *memoryConversationRepository {
	return &memoryConversationRepository{
		conversations: make(map[string]*entity.Conversation),
		pairs:         make(map[string]string),
		messages:      make(map[string][]*entity.Message),
		now:           now,
	}
}

func (r *memoryConversationRepository) FindOrCreateIndividual(ctx context.Context, userA, userB string) (*entity.Conversation, bool, error) {
	if err := validatePair(userA, userB); err != nil {
		return nil, false, err
	}
	key := entity.PairKey(userA, userB)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.pairs[key]; ok {
		if conv := r.conversations[id]; conv != nil && conv.IsActive() {
			return cloneConversation(conv), false, nil
		}
	}

	now := timestamp(r.now())
	conv := &entity.Conversation{
		ID:            uuid.New().String(),
		Kind:          entity.ConversationIndividual,
		Participants:  strings.Split(key, "|"),
		Status:        entity.ConversationActive,
		PairKey:       key,
		CreatedBy:     userA,
		ReadSequence:  make(map[string]int64),
		SentSinceRead: make(map[string]int64),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.conversations[conv.ID] = conv
	r.pairs[key] = conv.ID

	return cloneConversation(conv), true, nil
}

func (r *memoryConversationRepository) CreateGroup(ctx context.Context, creatorID, title string, participants []string) (*entity.Conversation, error) {
	members, err := groupMembers(creatorID, participants)
	if err != nil {
		return nil, err
	}

	now := timestamp(r.now())
	conv := &entity.Conversation{
		ID:            uuid.New().String(),
		Kind:          entity.ConversationGroup,
		Title:         strings.TrimSpace(title),
		Participants:  members,
		Status:        entity.ConversationActive,
		CreatedBy:     creatorID,
		ReadSequence:  make(map[string]int64),
		SentSinceRead: make(map[string]int64),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	r.mu.Lock()
	r.conversations[conv.ID] = conv
	r.mu.Unlock()

	return cloneConversation(conv), nil
}

func (r *memoryConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return cloneConversation(conv), nil
}

func (r *memoryConversationRepository) UpdateStatus(ctx context.Context, id string, status entity.ConversationStatus) error {
	if !status.Valid() {
		return errors.Validation("unknown conversation status")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}

	if conv.Kind == entity.ConversationIndividual {
		current, held := r.pairs[conv.PairKey]
		switch {
		case status == entity.ConversationActive && held && current != id && r.conversations[current].IsActive():
			return errors.Validation("another active conversation exists for these participants")
		case status == entity.ConversationActive:
			r.pairs[conv.PairKey] = id
		case held && current == id:
			delete(r.pairs, conv.PairKey)
		}
	}

	conv.Status = status
	conv.UpdatedAt = timestamp(r.now())
	return nil
}

func (r *memoryConversationRepository) AppendMessage(ctx context.Context, in entity.NewMessage) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[in.ConversationID]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	if err := checkWritable(conv, in.SenderID); err != nil {
		return nil, err
	}
	if err := validateContent(in); err != nil {
		return nil, err
	}

	createdAt := nextTimestamp(r.now(), conv.LastMessageAt)
	msg := &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Body:           in.Body,
		Type:           messageType(in),
		Attachment:     in.Attachment,
		Sequence:       conv.LastSequence + 1,
		CreatedAt:      createdAt,
		ReadBy:         make(map[string]time.Time),
	}

	r.messages[conv.ID] = append(r.messages[conv.ID], msg)
	conv.LastSequence = msg.Sequence
	conv.LastMessageAt = createdAt
	if conv.SentSinceRead == nil {
		conv.SentSinceRead = make(map[string]int64)
	}
	conv.SentSinceRead[in.SenderID]++
	conv.UpdatedAt = createdAt

	return cloneMessage(msg), nil
}

func (r *memoryConversationRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[conversationID]
	if !ok {
		return 0, time.Time{}, errors.NotFound("Conversation", nil)
	}
	if !conv.HasParticipant(readerID) {
		return 0, time.Time{}, errors.NotParticipant(conversationID)
	}

	readAt := timestamp(r.now())
	watermark := conv.ReadSequence[readerID]
	count := 0
	for _, msg := range r.messages[conversationID] {
		if msg.Sequence <= watermark || msg.SenderID == readerID {
			continue
		}
		if _, read := msg.ReadBy[readerID]; read {
			continue
		}
		msg.ReadBy[readerID] = readAt
		count++
	}

	if conv.ReadSequence == nil {
		conv.ReadSequence = make(map[string]int64)
	}
	conv.ReadSequence[readerID] = conv.LastSequence
	delete(conv.SentSinceRead, readerID)

	return count, readAt, nil
}

func (r *memoryConversationRepository) ListMessages(ctx context.Context, conversationID string, cursor int64, limit int) (*entity.MessagePage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return nil, errors.NotFound("Conversation", nil)
	}

	all := r.messages[conversationID]
	end := len(all)
	if cursor > 0 {
		end = sort.Search(len(all), func(i int) bool { return all[i].Sequence >= cursor })
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	page := &entity.MessagePage{Messages: make([]*entity.Message, 0, end-start)}
	for i := end - 1; i >= start; i-- {
		page.Messages = append(page.Messages, cloneMessage(all[i]))
	}
	if start > 0 {
		page.NextCursor = all[start].Sequence
	}
	return page, nil
}

func (r *memoryConversationRepository) ListConversationsFor(ctx context.Context, userID string) ([]*entity.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var summaries []*entity.ConversationSummary
	for _, conv := range r.conversations {
		if conv.Status == entity.ConversationDeleted || !conv.HasParticipant(userID) {
			continue
		}
		summary := &entity.ConversationSummary{
			Conversation: cloneConversation(conv),
			UnreadCount:  conv.UnreadFor(userID),
		}
		if msgs := r.messages[conv.ID]; len(msgs) > 0 {
			summary.LastMessage = cloneMessage(msgs[len(msgs)-1])
		}
		summaries = append(summaries, summary)
	}

	sortSummaries(summaries)
	return summaries, nil
}

func cloneConversation(c *entity.Conversation) *entity.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.ReadSequence = make(map[string]int64, len(c.ReadSequence))
	for k, v := range c.ReadSequence {
		out.ReadSequence[k] = v
	}
	out.SentSinceRead = make(map[string]int64, len(c.SentSinceRead))
	for k, v := range c.SentSinceRead {
		out.SentSinceRead[k] = v
	}
	return &out
}

func cloneMessage(m *entity.Message) *entity.Message {
	out := *m
	out.ReadBy = make(map[string]time.Time, len(m.ReadBy))
	for k, v := range m.ReadBy {
		out.ReadBy[k] = v
	}
	if m.Attachment != nil {
		att := *m.Attachment
		out.Attachment = &att
	}
	return &out
}
