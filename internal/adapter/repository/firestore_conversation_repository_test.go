package repository

import (
	"context"
	"os"
	"sync"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/domain/entity"
	"learnhub/pkg/errors"
)

// These tests talk to the Firestore emulator and are skipped without one.
func newEmulatorClient(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	client, err := firestore.NewClient(context.Background(), "learnhub-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestFirestoreFindOrCreateIndividual(t *testing.T) {
	repo := NewFirestoreConversationRepository(newEmulatorClient(t))
	ctx := context.Background()
	alice, bob := "alice-"+uuid.NewString(), "bob-"+uuid.NewString()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]bool{}
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 1 {
				a, b = b, a
			}
			conv, isNew, err := repo.FindOrCreateIndividual(ctx, a, b)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[conv.ID] = true
			if isNew {
				created++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)
}

func TestFirestoreAppendAndMarkRead(t *testing.T) {
	repo := NewFirestoreConversationRepository(newEmulatorClient(t))
	ctx := context.Background()
	alice, bob := "alice-"+uuid.NewString(), "bob-"+uuid.NewString()

	conv, _, err := repo.FindOrCreateIndividual(ctx, alice, bob)
	require.NoError(t, err)

	for _, body := range []string{"one", "two", "three"} {
		_, err := repo.AppendMessage(ctx, entity.NewMessage{ConversationID: conv.ID, SenderID: alice, Body: body})
		require.NoError(t, err)
	}
	_, err = repo.AppendMessage(ctx, entity.NewMessage{ConversationID: conv.ID, SenderID: "mallory", Body: "x"})
	assert.True(t, errors.Is(err, errors.CodeNotParticipant))

	page, err := repo.ListMessages(ctx, conv.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, int64(3), page.Messages[0].Sequence)
	assert.Equal(t, int64(2), page.NextCursor)

	count, _, err := repo.MarkRead(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, _, err = repo.MarkRead(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.Zero(t, count)

	list, err := repo.ListConversationsFor(ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "three", list[0].LastMessage.Body)
	assert.Zero(t, list[0].UnreadCount)

	list, err = repo.ListConversationsFor(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Zero(t, list[0].UnreadCount)
}
