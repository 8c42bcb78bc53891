package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

var (
	// ErrConversationNotFound is returned when no state exists for an id.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrConversationCorrupt is returned when a stored state cannot be decoded.
	ErrConversationCorrupt = errors.New("conversation state corrupt")
)

// ConversationRepository stores intake progress per conversation. Stores
// hand out copies: mutating a returned state never changes the stored one.
type ConversationRepository interface {
	Get(ctx context.Context, conversationID string) (*domain.ConversationState, error)
	Put(ctx context.Context, state *domain.ConversationState) error
	Delete(ctx context.Context, conversationID string) error
}

type memoryConversationRepository struct {
	mu     sync.RWMutex
	states map[string]*domain.ConversationState
}

// NewMemoryConversationRepository keeps states for the process lifetime.
func NewMemoryConversationRepository() ConversationRepository {
	return &memoryConversationRepository{states: make(map[string]*domain.ConversationState)}
}

func (r *memoryConversationRepository) Get(_ context.Context, id string) (*domain.ConversationState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return state.Clone(), nil
}

func (r *memoryConversationRepository) Put(_ context.Context, state *domain.ConversationState) error {
	if state == nil || state.ConversationID == "" {
		return errors.New("conversation id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.ConversationID] = state.Clone()
	return nil
}

func (r *memoryConversationRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, id)
	return nil
}

type redisConversationRepository struct {
	client   redis.Cmdable
	tenantID int
	ttl      time.Duration
}

// NewRedisConversationRepository stores states as JSON. Every Put refreshes
// the TTL, so idle conversations expire; ttl <= 0 keeps them forever.
func NewRedisConversationRepository(client redis.Cmdable, tenantID int, ttl time.Duration) ConversationRepository {
	return &redisConversationRepository{client: client, tenantID: tenantID, ttl: ttl}
}

func (r *redisConversationRepository) key(id string) string {
	return fmt.Sprintf("tenant:%d:conversation:%s", r.tenantID, id)
}

func (r *redisConversationRepository) Get(ctx context.Context, id string) (*domain.ConversationState, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: decode conversation %s: %w", ErrConversationCorrupt, id, err)
	}
	if state.Fields == nil {
		state.Fields = map[string]string{}
	}
	return &state, nil
}

func (r *redisConversationRepository) Put(ctx context.Context, state *domain.ConversationState) error {
	if state == nil || state.ConversationID == "" {
		return errors.New("conversation id required")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", state.ConversationID, err)
	}
	return r.client.Set(ctx, r.key(state.ConversationID), raw, r.ttl).Err()
}

func (r *redisConversationRepository) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}
