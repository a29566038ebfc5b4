// Package locking provides per-address exclusive locks held for the duration of one
// instruction. Keys are always acquired in sorted order so two instructions sharing
// addresses cannot deadlock.
package locking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Locker acquires all keys or none.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

var ErrLockTimeout = errors.New("timed out acquiring address lock")

func normalize(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

type memEntry struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker serializes instructions inside one process.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*memEntry)}
}

func (l *MemoryLocker) ref(key string) *memEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &memEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *MemoryLocker) unref(key string, e *memEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *MemoryLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]*memEntry, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].ch
			l.unref(keys[i], held[i])
		}
	}
	for _, k := range keys {
		e := l.ref(k)
		select {
		case e.ch <- struct{}{}:
			held = append(held, e)
		case <-ctx.Done():
			l.unref(k, e)
			release()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrLockTimeout
			}
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

// Compare-and-delete so a lock that expired and was re-acquired elsewhere is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker shares address locks between registry instances.
type RedisLocker struct {
	Client redis.UniversalClient
	Prefix string
	// TTL bounds how long a crashed holder can block an address.
	TTL           time.Duration
	RetryInterval time.Duration
	Logger        zerolog.Logger
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		Client:        client,
		Prefix:        "lock:address:",
		TTL:           ttl,
		RetryInterval: 10 * time.Millisecond,
		Logger:        log.Logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	token := uuid.New().String()
	held := make([]string, 0, len(keys))
	release := func() {
		// Use a fresh context: the caller's may already be cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(rctx, l.Client, []string{held[i]}, token).Err(); err != nil {
				// the key stays held until its TTL expires
				l.Logger.Warn().Err(err).Str("key", held[i]).Msg("release address lock")
			}
		}
	}
	for _, k := range keys {
		rk := l.Prefix + k
		for {
			ok, err := l.Client.SetNX(ctx, rk, token, l.TTL).Result()
			if err != nil {
				release()
				return nil, err
			}
			if ok {
				held = append(held, rk)
				break
			}
			select {
			case <-ctx.Done():
				release()
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, ErrLockTimeout
				}
				return nil, ctx.Err()
			case <-time.After(l.RetryInterval):
			}
		}
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}
