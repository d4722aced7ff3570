package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCmds is the slice of the go-redis client the debouncer uses. Tests
// substitute a fake; production wraps *redis.Client.
type redisCmds interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisDebounce implements Debouncer on redis, for deployments where more
// than one process admits for the same tenant set. Expiry is delegated to
// redis key TTLs; the gate's clock is not consulted. Arming is a single
// SET NX with TTL, so two processes marking the same key cannot restart
// each other's window.
type RedisDebounce struct {
	client redisCmds
}

// NewRedisDebounce creates a debouncer backed by redis.
func NewRedisDebounce(addr, password string, db int) *RedisDebounce {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisDebounce{client: rdb}
}

// NewRedisDebounceFromClient wraps an existing client.
func NewRedisDebounceFromClient(client *redis.Client) *RedisDebounce {
	return &RedisDebounce{client: client}
}

func (d *RedisDebounce) key(tenantID, contextKey string) string {
	return fmt.Sprintf("debounce:%s:%s", tenantID, contextKey)
}

func (d *RedisDebounce) Seen(ctx context.Context, tenantID, contextKey string, _ time.Time) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(tenantID, contextKey)).Result()
	if err != nil {
		return false, fmt.Errorf("redis debounce exists: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDebounce) Mark(ctx context.Context, tenantID, contextKey string, _ time.Time) error {
	// NX keeps the first marker's TTL when two processes race past Seen.
	if err := d.client.SetNX(ctx, d.key(tenantID, contextKey), "1", DebounceTTL).Err(); err != nil {
		return fmt.Errorf("redis debounce setnx: %w", err)
	}
	return nil
}
