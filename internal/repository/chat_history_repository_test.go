package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

func chatHistoryStores(t *testing.T) (map[string]ChatHistoryRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]ChatHistoryRepository{
		"memory": NewMemoryChatHistoryRepository(),
		"redis":  NewRedisChatHistoryRepository(client, 1, time.Hour),
	}, mr
}

func TestChatHistoryKeepsLatestTurns(t *testing.T) {
	stores, _ := chatHistoryStores(t)
	for name, repo := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := repo.Recent(ctx, "c-1", 5)
			require.NoError(t, err)
			assert.Empty(t, empty)

			for i := 0; i < 7; i++ {
				require.NoError(t, repo.Append(ctx, "c-1",
					domain.ChatTurn{Role: domain.ChatRoleUser, Content: fmt.Sprintf("pergunta %d", i)},
					domain.ChatTurn{Role: domain.ChatRoleAssistant, Content: fmt.Sprintf("resposta %d", i)},
				))
			}

			all, err := repo.Recent(ctx, "c-1", 50)
			require.NoError(t, err)
			require.Len(t, all, domain.ChatHistoryLimit)
			assert.Equal(t, "pergunta 2", all[0].Content)
			assert.Equal(t, "resposta 6", all[len(all)-1].Content)

			last, err := repo.Recent(ctx, "c-1", 3)
			require.NoError(t, err)
			require.Len(t, last, 3)
			assert.Equal(t, "resposta 5", last[0].Content)
			assert.Equal(t, domain.ChatRoleUser, last[1].Role)

			others, err := repo.Recent(ctx, "c-2", 5)
			require.NoError(t, err)
			assert.Empty(t, others)

			require.NoError(t, repo.Clear(ctx, "c-1"))
			cleared, err := repo.Recent(ctx, "c-1", 5)
			require.NoError(t, err)
			assert.Empty(t, cleared)
		})
	}
}

func TestRedisChatHistoryExpires(t *testing.T) {
	stores, mr := chatHistoryStores(t)
	repo := stores["redis"]
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, "c-1", domain.ChatTurn{Role: domain.ChatRoleUser, Content: "oi"}))
	assert.True(t, mr.Exists("tenant:1:chat:c-1"))

	mr.FastForward(2 * time.Hour)
	turns, err := repo.Recent(ctx, "c-1", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)
}
