// internal/services/webhook_guard.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const webhookKeyNamespace = "idea-market:webhook"

// WebhookGuard remembers gateway event ids that were already handled.
type WebhookGuard interface {
	// CheckAndMark reports true when eventID was seen before.
	CheckAndMark(ctx context.Context, gateway, eventID string) (bool, error)
	Release(ctx context.Context, gateway, eventID string) error
}

type redisCmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisWebhookGuard struct {
	store redisCmdable
	ttl   time.Duration
}

func NewRedisWebhookGuard(store redisCmdable, ttl time.Duration) (*RedisWebhookGuard, error) {
	if store == nil {
		return nil, errors.New("redis store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &RedisWebhookGuard{store: store, ttl: ttl}, nil
}

func (g *RedisWebhookGuard) CheckAndMark(ctx context.Context, gateway, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, webhookKey(gateway, eventID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set webhook key: %w", err)
	}
	return !set, nil
}

func (g *RedisWebhookGuard) Release(ctx context.Context, gateway, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, webhookKey(gateway, eventID)).Err()
}

func webhookKey(gateway, eventID string) string {
	return fmt.Sprintf("%s:%s:%s", webhookKeyNamespace, gateway, eventID)
}

type noopGuard struct{}

func (noopGuard) CheckAndMark(context.Context, string, string) (bool, error) { return false, nil }
func (noopGuard) Release(context.Context, string, string) error { return nil }
