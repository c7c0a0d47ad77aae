package vote

import (
	"context"
	"sync"
	"time"

	"github.com/suPer8Hu/prompt-hub/internal/store/redisstore"
)

// Guard admits at most one outstanding toggle per key.
type Guard interface {
	// Acquire returns ok=false when key is held. release must be called
	// exactly once after a successful Acquire.
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// LocalGuard is a process-local Guard.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(_ context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, false, nil
	}
	g.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, true, nil
}

// Locker is the lock surface of redisstore.Store.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, name, token string) error
}

// RedisGuard shares the in-flight state between server instances. The TTL
// bounds how long a crashed holder blocks the key.
type RedisGuard struct {
	locks Locker
	ttl   time.Duration
}

func NewRedisGuard(locks Locker, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisGuard{locks: locks, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), bool, error) {
	name := "vote:" + key
	tok, ok, err := g.locks.TryLock(ctx, name, g.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// detached from the request so a cancelled toggle still unlocks
			uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = g.locks.Unlock(uctx, name, tok)
		})
	}, true, nil
}

var (
	_ Guard  = (*LocalGuard)(nil)
	_ Guard  = (*RedisGuard)(nil)
	_ Locker = (*redisstore.Store)(nil)
)
