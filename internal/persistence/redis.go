package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/config"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
	"github.com/cidadao-ai/citizen-intake/internal/repository"
)

const redisPingTimeout = 2 * time.Second

// Redis wraps the go-redis client shared by conversation state, assistant
// memory and the notification broadcast.
type Redis struct {
	Client    *redis.Client
	tenantID  int
	reachable bool
	logger    *zap.Logger
}

// NewRedis connects to Redis and pings it once. An unreachable server is
// logged, not fatal: the stores it would back are kept in memory instead.
func NewRedis(ctx context.Context, cfg config.RedisConfig, tenantID int, logger *zap.Logger) *Redis {
	r := &Redis{
		Client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		tenantID: tenantID,
		logger:   observability.Named(logger, "redis"),
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		r.logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		r.reachable = true
		r.logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}
	return r
}

// ConversationStore picks where intake state lives: redis when cfg asks for
// it and the server answered at startup, memory otherwise.
func (r *Redis) ConversationStore(cfg config.IntakeConfig) repository.ConversationRepository {
	if !r.backs(cfg, "conversation state") {
		return repository.NewMemoryConversationRepository()
	}
	return repository.NewRedisConversationRepository(r.Client, r.tenantID, cfg.ConversationTTL())
}

// ChatHistory picks where assistant memory lives, alongside the
// conversation state.
func (r *Redis) ChatHistory(cfg config.IntakeConfig) repository.ChatHistoryRepository {
	if !r.backs(cfg, "assistant memory") {
		return repository.NewMemoryChatHistoryRepository()
	}
	return repository.NewRedisChatHistoryRepository(r.Client, r.tenantID, cfg.ConversationTTL())
}

func (r *Redis) backs(cfg config.IntakeConfig, what string) bool {
	if cfg.ConversationStore != "redis" {
		return false
	}
	if r == nil || !r.reachable {
		if r != nil {
			r.logger.Warn("redis unavailable, keeping "+what+" in memory")
		}
		return false
	}
	return true
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
