package repository

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"learnhub/internal/domain/entity"
	"learnhub/internal/domain/repository"
	"learnhub/pkg/errors"
	"learnhub/pkg/logger"
)

const (
	collectionConversations = "conversations"
	collectionPairs         = "conversation_pairs"
	collectionMessages      = "messages"

	// Firestore caps a transaction at 500 writes; one is reserved for the
	// watermark.
	markReadBatchSize = 400
	previewWorkers    = 8
)

// conversationPair is the uniqueness index for individual conversations,
// keyed by the normalized pair key.
type conversationPair struct {
	ConversationID string    `firestore:"conversationId"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) conversations() *firestore.CollectionRef {
	return r.client.Collection(collectionConversations)
}

func (r *firestoreConversationRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.conversations().Doc(conversationID).Collection(collectionMessages)
}

func (r *firestoreConversationRepository) FindOrCreateIndividual(ctx context.Context, userA, userB string) (*entity.Conversation, bool, error) {
	if err := validatePair(userA, userB); err != nil {
		return nil, false, err
	}
	key := entity.PairKey(userA, userB)
	pairRef := r.client.Collection(collectionPairs).Doc(key)

	var (
		conv    *entity.Conversation
		created bool
	)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		conv, created = nil, false

		existing, err := r.activePairConversation(tx, pairRef)
		if err != nil {
			return err
		}
		if existing != nil {
			conv = existing
			return nil
		}

		now := timestamp(time.Now())
		fresh := &entity.Conversation{
			ID:            uuid.New().String(),
			Kind:          entity.ConversationIndividual,
			Participants:  strings.Split(key, "|"),
			Status:        entity.ConversationActive,
			PairKey:       key,
			CreatedBy:     userA,
			ReadSequence:  map[string]int64{},
			SentSinceRead: map[string]int64{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(r.conversations().Doc(fresh.ID), fresh); err != nil {
			return err
		}
		if err := tx.Set(pairRef, conversationPair{ConversationID: fresh.ID, UpdatedAt: now}); err != nil {
			return err
		}

		conv, created = fresh, true
		return nil
	})
	if err != nil {
		return nil, false, txError("Failed to find or create conversation", err)
	}

	return conv, created, nil
}

// activePairConversation returns the active conversation the pair index
// points at, or nil when there is none.
func (r *firestoreConversationRepository) activePairConversation(tx *firestore.Transaction, pairRef *firestore.DocumentRef) (*entity.Conversation, error) {
	pairSnap, err := tx.Get(pairRef)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pair conversationPair
	if err := pairSnap.DataTo(&pair); err != nil {
		return nil, err
	}

	convSnap, err := tx.Get(r.conversations().Doc(pair.ConversationID))
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var conv entity.Conversation
	if err := convSnap.DataTo(&conv); err != nil {
		return nil, err
	}
	if !conv.IsActive() {
		return nil, nil
	}
	return &conv, nil
}

func (r *firestoreConversationRepository) CreateGroup(ctx context.Context, creatorID, title string, participants []string) (*entity.Conversation, error) {
	members, err := groupMembers(creatorID, participants)
	if err != nil {
		return nil, err
	}

	now := timestamp(time.Now())
	conv := &entity.Conversation{
		ID:            uuid.New().String(),
		Kind:          entity.ConversationGroup,
		Title:         strings.TrimSpace(title),
		Participants:  members,
		Status:        entity.ConversationActive,
		CreatedBy:     creatorID,
		ReadSequence:  map[string]int64{},
		SentSinceRead: map[string]int64{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := r.conversations().Doc(conv.ID).Create(ctx, conv); err != nil {
		return nil, errors.Internal("Failed to create conversation", err)
	}
	return conv, nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.conversations().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}

	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	return &conv, nil
}

func (r *firestoreConversationRepository) UpdateStatus(ctx context.Context, id string, newStatus entity.ConversationStatus) error {
	if !newStatus.Valid() {
		return errors.Validation("unknown conversation status")
	}
	convRef := r.conversations().Doc(id)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		conv, err := getConversation(tx, convRef)
		if err != nil {
			return err
		}
		now := timestamp(time.Now())

		if conv.Kind == entity.ConversationIndividual {
			pairRef := r.client.Collection(collectionPairs).Doc(conv.PairKey)
			holder, err := r.activePairConversation(tx, pairRef)
			if err != nil {
				return err
			}
			switch {
			case newStatus == entity.ConversationActive && holder != nil && holder.ID != id:
				return errors.Validation("another active conversation exists for these participants")
			case newStatus == entity.ConversationActive:
				if err := tx.Set(pairRef, conversationPair{ConversationID: id, UpdatedAt: now}); err != nil {
					return err
				}
			case holder != nil && holder.ID == id:
				if err := tx.Delete(pairRef); err != nil {
					return err
				}
			}
		}

		return tx.Update(convRef, []firestore.Update{
			{Path: "status", Value: newStatus},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		return txError("Failed to update conversation status", err)
	}
	return nil
}

func (r *firestoreConversationRepository) AppendMessage(ctx context.Context, in entity.NewMessage) (*entity.Message, error) {
	convRef := r.conversations().Doc(in.ConversationID)
	msgID := uuid.New().String()

	var msg *entity.Message
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		conv, err := getConversation(tx, convRef)
		if err != nil {
			return err
		}
		if err := checkWritable(conv, in.SenderID); err != nil {
			return err
		}
		if err := validateContent(in); err != nil {
			return err
		}

		createdAt := nextTimestamp(time.Now(), conv.LastMessageAt)
		msg = &entity.Message{
			ID:             msgID,
			ConversationID: conv.ID,
			SenderID:       in.SenderID,
			Body:           in.Body,
			Type:           messageType(in),
			Attachment:     in.Attachment,
			Sequence:       conv.LastSequence + 1,
			CreatedAt:      createdAt,
			ReadBy:         map[string]time.Time{},
		}

		if err := tx.Create(convRef.Collection(collectionMessages).Doc(msgID), msg); err != nil {
			return err
		}
		return tx.Update(convRef, []firestore.Update{
			{Path: "lastSequence", Value: msg.Sequence},
			{Path: "lastMessageAt", Value: createdAt},
			{Path: "updatedAt", Value: createdAt},
			{FieldPath: firestore.FieldPath{"sentSinceRead", in.SenderID}, Value: firestore.Increment(1)},
		})
	})
	if err != nil {
		return nil, txError("Failed to append message", err)
	}

	return msg, nil
}

func (r *firestoreConversationRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int, time.Time, error) {
	readAt := timestamp(time.Now())
	total := 0

	for {
		count, done, err := r.markReadBatch(ctx, conversationID, readerID, readAt)
		if err != nil {
			return 0, time.Time{}, txError("Failed to mark messages as read", err)
		}
		total += count
		if done {
			return total, readAt, nil
		}
	}
}

// markReadBatch advances the reader's watermark over at most
// markReadBatchSize messages in one transaction. done is false while older
// unread messages remain past the batch.
func (r *firestoreConversationRepository) markReadBatch(ctx context.Context, conversationID, readerID string, readAt time.Time) (int, bool, error) {
	convRef := r.conversations().Doc(conversationID)

	var (
		count int
		done  bool
	)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		count, done = 0, false

		conv, err := getConversation(tx, convRef)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(readerID) {
			return errors.NotParticipant(conversationID)
		}

		watermark := conv.ReadSequence[readerID]
		query := convRef.Collection(collectionMessages).
			Where("sequence", ">", watermark).
			OrderBy("sequence", firestore.Asc).
			Limit(markReadBatchSize)
		docs, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}

		var unread []*firestore.DocumentRef
		var own int64
		newWatermark := conv.LastSequence
		for _, doc := range docs {
			var msg entity.Message
			if err := doc.DataTo(&msg); err != nil {
				return err
			}
			if msg.SenderID == readerID {
				own++
				continue
			}
			if _, read := msg.ReadBy[readerID]; read {
				continue
			}
			unread = append(unread, doc.Ref)
		}
		if len(docs) == markReadBatchSize {
			var last entity.Message
			if err := docs[len(docs)-1].DataTo(&last); err != nil {
				return err
			}
			if last.Sequence < conv.LastSequence {
				newWatermark = last.Sequence
			}
		}

		for _, ref := range unread {
			if err := tx.Update(ref, []firestore.Update{
				{FieldPath: firestore.FieldPath{"readBy", readerID}, Value: readAt},
			}); err != nil {
				return err
			}
		}
		sent := conv.SentSinceRead[readerID] - own
		if sent < 0 || newWatermark == conv.LastSequence {
			sent = 0
		}
		if err := tx.Update(convRef, []firestore.Update{
			{FieldPath: firestore.FieldPath{"readSequence", readerID}, Value: newWatermark},
			{FieldPath: firestore.FieldPath{"sentSinceRead", readerID}, Value: sent},
		}); err != nil {
			return err
		}

		count = len(unread)
		done = newWatermark == conv.LastSequence
		return nil
	})
	return count, done, err
}

func (r *firestoreConversationRepository) ListMessages(ctx context.Context, conversationID string, cursor int64, limit int) (*entity.MessagePage, error) {
	if _, err := r.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}

	query := r.messages(conversationID).OrderBy("sequence", firestore.Desc)
	if cursor > 0 {
		query = query.Where("sequence", "<", cursor)
	}
	iter := query.Limit(limit + 1).Documents(ctx)
	defer iter.Stop()

	page := &entity.MessagePage{Messages: make([]*entity.Message, 0, limit)}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, errors.Internal("Failed to list messages", err)
		}

		var msg entity.Message
		if err := doc.DataTo(&msg); err != nil {
			return nil, errors.Internal("Failed to parse message data", err)
		}
		if len(page.Messages) == limit {
			page.NextCursor = page.Messages[limit-1].Sequence
			break
		}
		page.Messages = append(page.Messages, &msg)
	}

	return page, nil
}

func (r *firestoreConversationRepository) ListConversationsFor(ctx context.Context, userID string) ([]*entity.ConversationSummary, error) {
	query := r.conversations().
		Where("participants", "array-contains", userID).
		OrderBy("lastMessageAt", firestore.Desc)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while fetching conversations for user %s: %v", userID, err)
		return nil, errors.Internal("Failed to fetch conversations", err)
	}

	summaries := make([]*entity.ConversationSummary, 0, len(docs))
	for _, doc := range docs {
		var conv entity.Conversation
		if err := doc.DataTo(&conv); err != nil {
			logger.Warn("Skipping unreadable conversation %s: %v", doc.Ref.ID, err)
			continue
		}
		if conv.Status == entity.ConversationDeleted {
			continue
		}
		summaries = append(summaries, &entity.ConversationSummary{
			Conversation: &conv,
			UnreadCount:  conv.UnreadFor(userID),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(previewWorkers)
	for _, summary := range summaries {
		summary := summary
		if summary.LastSequence == 0 {
			continue
		}
		g.Go(func() error {
			last, err := r.lastMessage(gctx, summary.ID)
			if err != nil {
				return err
			}
			summary.LastMessage = last
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Internal("Failed to load last messages", err)
	}

	sortSummaries(summaries)
	return summaries, nil
}

func (r *firestoreConversationRepository) lastMessage(ctx context.Context, conversationID string) (*entity.Message, error) {
	iter := r.messages(conversationID).OrderBy("sequence", firestore.Desc).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msg entity.Message
	if err := doc.DataTo(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func getConversation(tx *firestore.Transaction, ref *firestore.DocumentRef) (*entity.Conversation, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, err
	}

	var conv entity.Conversation
	if err := snap.DataTo(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// txError passes domain errors raised inside a transaction through unchanged
// and wraps everything else as internal.
func txError(message string, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.Internal(message, err)
}
