package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

func conversationStores(t *testing.T) map[string]ConversationRepository {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]ConversationRepository{
		"memory": NewMemoryConversationRepository(),
		"redis":  NewRedisConversationRepository(client, 1, time.Hour),
	}
}

func TestConversationStoresRoundTrip(t *testing.T) {
	for name, repo := range conversationStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := repo.Get(ctx, "c-1")
			assert.ErrorIs(t, err, ErrConversationNotFound)

			state := domain.NewConversationState("c-1")
			state.Step = domain.StepConfirmingCategory
			state.Fields[domain.FieldDescription] = "tem um buraco na rua"
			state.Fields[domain.FieldEmail] = ""
			state.Classification = &domain.ClassificationResult{Category: "infraestrutura", Confidence: 0.22, Method: domain.MethodKeyword}
			require.NoError(t, repo.Put(ctx, state))

			got, err := repo.Get(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, domain.StepConfirmingCategory, got.Step)
			assert.True(t, got.Has(domain.FieldEmail))
			assert.Equal(t, "infraestrutura", got.Classification.Category)

			got.Fields[domain.FieldDescription] = "mutated"
			again, err := repo.Get(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, "tem um buraco na rua", again.Fields[domain.FieldDescription])

			require.NoError(t, repo.Delete(ctx, "c-1"))
			_, err = repo.Get(ctx, "c-1")
			assert.ErrorIs(t, err, ErrConversationNotFound)
		})
	}
}

func TestRedisConversationExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := NewRedisConversationRepository(client, 7, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, domain.NewConversationState("c-9")))
	assert.True(t, mr.Exists("tenant:7:conversation:c-9"))

	mr.FastForward(2 * time.Minute)

	_, err := repo.Get(ctx, "c-9")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationPutRequiresID(t *testing.T) {
	for name, repo := range conversationStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, repo.Put(context.Background(), &domain.ConversationState{}))
		})
	}
}

func TestRedisConversationUndecodableState(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := NewRedisConversationRepository(client, 1, time.Hour)

	require.NoError(t, mr.Set("tenant:1:conversation:c-9", "{not json"))

	_, err := repo.Get(context.Background(), "c-9")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConversationCorrupt)
	assert.NotErrorIs(t, err, ErrConversationNotFound)
}
