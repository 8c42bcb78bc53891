package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// ChatHistoryRepository keeps the latest assistant turns per conversation.
// Only the last domain.ChatHistoryLimit turns survive an Append.
type ChatHistoryRepository interface {
	Recent(ctx context.Context, conversationID string, n int) ([]domain.ChatTurn, error)
	Append(ctx context.Context, conversationID string, turns ...domain.ChatTurn) error
	Clear(ctx context.Context, conversationID string) error
}

type memoryChatHistoryRepository struct {
	mu    sync.Mutex
	turns map[string][]domain.ChatTurn
}

// NewMemoryChatHistoryRepository keeps histories for the process lifetime.
func NewMemoryChatHistoryRepository() ChatHistoryRepository {
	return &memoryChatHistoryRepository{turns: make(map[string][]domain.ChatTurn)}
}

func (r *memoryChatHistoryRepository) Recent(_ context.Context, id string, n int) ([]domain.ChatTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lastTurns(r.turns[id], n), nil
}

func (r *memoryChatHistoryRepository) Append(_ context.Context, id string, turns ...domain.ChatTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[id] = lastTurns(append(r.turns[id], turns...), domain.ChatHistoryLimit)
	return nil
}

func (r *memoryChatHistoryRepository) Clear(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.turns, id)
	return nil
}

// lastTurns copies the trailing n turns; n <= 0 means none.
func lastTurns(turns []domain.ChatTurn, n int) []domain.ChatTurn {
	if n <= 0 {
		return nil
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]domain.ChatTurn(nil), turns...)
}

type redisChatHistoryRepository struct {
	client   redis.Cmdable
	tenantID int
	ttl      time.Duration
}

// NewRedisChatHistoryRepository stores each history as a capped redis list of
// JSON turns. Every Append refreshes the TTL; ttl <= 0 keeps them forever.
func NewRedisChatHistoryRepository(client redis.Cmdable, tenantID int, ttl time.Duration) ChatHistoryRepository {
	return &redisChatHistoryRepository{client: client, tenantID: tenantID, ttl: ttl}
}

func (r *redisChatHistoryRepository) key(id string) string {
	return fmt.Sprintf("tenant:%d:chat:%s", r.tenantID, id)
}

func (r *redisChatHistoryRepository) Recent(ctx context.Context, id string, n int) ([]domain.ChatTurn, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := r.client.LRange(ctx, r.key(id), int64(-n), -1).Result()
	if err != nil {
		return nil, err
	}
	turns := make([]domain.ChatTurn, 0, len(raw))
	for _, item := range raw {
		var turn domain.ChatTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (r *redisChatHistoryRepository) Append(ctx context.Context, id string, turns ...domain.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]any, 0, len(turns))
	for _, turn := range turns {
		raw, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("encode chat turn: %w", err)
		}
		values = append(values, raw)
	}
	key := r.key(id)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, -domain.ChatHistoryLimit, -1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	return err
}

func (r *redisChatHistoryRepository) Clear(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}
