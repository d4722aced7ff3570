package quota

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements redisCmds in memory and records the TTL each key was
// first armed with.
type fakeRedis struct {
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := f.ttls[k]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, _ any, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := f.ttls[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	f.ttls[key] = expiration
	cmd.SetVal(true)
	return cmd
}

func TestRedisDebounceMarkThenSeen(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	d := &RedisDebounce{client: fake}

	seen, err := d.Seen(ctx, "acme", "ctx-1", time.Now())
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Fatal("fresh key reported as seen")
	}

	if err := d.Mark(ctx, "acme", "ctx-1", time.Now()); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	seen, err = d.Seen(ctx, "acme", "ctx-1", time.Now())
	if err != nil {
		t.Fatalf("Seen after Mark: %v", err)
	}
	if !seen {
		t.Fatal("marked key not reported as seen")
	}

	// A different context key for the same tenant stays unarmed.
	seen, err = d.Seen(ctx, "acme", "ctx-2", time.Now())
	if err != nil {
		t.Fatalf("Seen other key: %v", err)
	}
	if seen {
		t.Fatal("unrelated key reported as seen")
	}
}

func TestRedisDebounceMarkArmsWithTTLOnce(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	d := &RedisDebounce{client: fake}

	if err := d.Mark(ctx, "acme", "ctx-1", time.Now()); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	key := d.key("acme", "ctx-1")
	if got := fake.ttls[key]; got != DebounceTTL {
		t.Fatalf("armed with TTL %v, want %v", got, DebounceTTL)
	}

	// A racing second Mark must not restart the first marker's window.
	fake.ttls[key] = DebounceTTL / 2
	if err := d.Mark(ctx, "acme", "ctx-1", time.Now()); err != nil {
		t.Fatalf("second Mark: %v", err)
	}
	if got := fake.ttls[key]; got != DebounceTTL/2 {
		t.Fatalf("second Mark rewrote TTL to %v", got)
	}
}
