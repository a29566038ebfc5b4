package locking

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_SortsAndDedupes(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, normalize([]string{"c", "a", "b", "a"}))
	assert.Empty(t, normalize(nil))
}

func TestMemoryLocker_Exclusive(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "x", "y")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "y")
	assert.ErrorIs(t, err, ErrLockTimeout)

	// disjoint keys are not blocked
	unlockZ, err := l.Lock(ctx, "z")
	require.NoError(t, err)
	unlockZ()

	unlock()
	unlock()
	unlockY, err := l.Lock(ctx, "y")
	require.NoError(t, err)
	unlockY()

	l.mu.Lock()
	assert.Empty(t, l.entries)
	l.mu.Unlock()
}

func TestMemoryLocker_SerializesCounter(t *testing.T) {
	l := NewMemoryLocker()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "program_state", "project")
			if err != nil {
				return
			}
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestRedisLocker_ExclusiveAndRelease(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRedisLocker(rdb, 5*time.Second)
	ctx := context.Background()
	unlock, err := l.Lock(ctx, "addr1", "addr2")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:address:addr1"))
	assert.True(t, mr.Exists("lock:address:addr2"))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "addr2", "addr3")
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, mr.Exists("lock:address:addr3"))

	unlock()
	assert.False(t, mr.Exists("lock:address:addr1"))
	assert.False(t, mr.Exists("lock:address:addr2"))
}

func TestRedisLocker_DoesNotReleaseForeignLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRedisLocker(rdb, time.Second)
	unlock, err := l.Lock(context.Background(), "addr")
	require.NoError(t, err)
	// simulate expiry and takeover by another holder
	require.NoError(t, mr.Set("lock:address:addr", "someone-else"))
	unlock()
	got, err := mr.Get("lock:address:addr")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_LogsFailedRelease(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var buf bytes.Buffer
	l := NewRedisLocker(rdb, 5*time.Second)
	l.Logger = zerolog.New(&buf)
	unlock, err := l.Lock(context.Background(), "addr")
	require.NoError(t, err)

	mr.SetError("LOADING Redis is loading the dataset in memory")
	unlock()
	mr.SetError("")

	assert.Contains(t, buf.String(), "release address lock")
	assert.Contains(t, buf.String(), "lock:address:addr")
	assert.True(t, mr.Exists("lock:address:addr"))
}

func TestRedisLocker_ForeignLockIsNotAnError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var buf bytes.Buffer
	l := NewRedisLocker(rdb, time.Second)
	l.Logger = zerolog.New(&buf)
	unlock, err := l.Lock(context.Background(), "addr")
	require.NoError(t, err)
	require.NoError(t, mr.Set("lock:address:addr", "someone-else"))
	unlock()
	assert.Empty(t, buf.String())
}
