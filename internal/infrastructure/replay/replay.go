// Package replay remembers recently accepted instruction signatures.
package replay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrReplayed = errors.New("instruction already submitted")

// Guard returns ErrReplayed when id was observed within ttl.
type Guard interface {
	Observe(ctx context.Context, id string, ttl time.Duration) error
}

type MemoryGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{seen: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Observe(_ context.Context, id string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for k, exp := range g.seen {
		if now.After(exp) {
			delete(g.seen, k)
		}
	}
	if _, ok := g.seen[id]; ok {
		return ErrReplayed
	}
	g.seen[id] = now.Add(ttl)
	return nil
}

type RedisGuard struct {
	Client redis.UniversalClient
	Prefix string
}

func NewRedisGuard(client redis.UniversalClient) *RedisGuard {
	return &RedisGuard{Client: client, Prefix: "replay:sig:"}
}

func (g *RedisGuard) Observe(ctx context.Context, id string, ttl time.Duration) error {
	ok, err := g.Client.SetNX(ctx, g.Prefix+id, 1, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrReplayed
	}
	return nil
}
