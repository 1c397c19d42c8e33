// Package replyguard serialises automated replies per client so the live
// handler and the unattended scheduler never answer the same message twice.
package replyguard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock is a held lock. Release is safe to call once.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive, expiring locks by key.
type Locker interface {
	// TryAcquire returns ok=false without error when the key is held.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lock Lock, ok bool, err error)
}

// RedisLocker implements Locker with SET NX PX and a token-checked release,
// so a lock that expired and was taken by someone else is never deleted.
type RedisLocker struct {
	rdb redis.UniversalClient
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLock{rdb: l.rdb, key: key, token: token}, true, nil
}

type redisLock struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

func (l *redisLock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// MemoryLocker is a process-local Locker for single-instance deployments and tests.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memEntry
	nowFn func() time.Time
}

type memEntry struct {
	token   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memEntry), nowFn: time.Now}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.held[key] = memEntry{token: token, expires: now.Add(ttl)}
	return &memLock{owner: l, key: key, token: token}, true, nil
}

type memLock struct {
	owner *MemoryLocker
	key   string
	token string
}

func (l *memLock) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if e, ok := l.owner.held[l.key]; ok && e.token == l.token {
		delete(l.owner.held, l.key)
	}
	return nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*MemoryLocker)(nil)
)
