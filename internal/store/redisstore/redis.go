package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/prompt-hub/internal/auth"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(cctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

// TryLock takes the named lock for ttl. ok is false when another holder has
// it. The returned token must be passed to Unlock.
func (s *Store) TryLock(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error) {
	token, err = auth.RandomToken(16)
	if err != nil {
		return "", false, err
	}
	ok, err = s.rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock releases a lock taken by TryLock. A lock that already expired or
// was taken over is left alone.
func (s *Store) Unlock(ctx context.Context, name, token string) error {
	err := unlockScript.Run(ctx, s.rdb, []string{lockKey(name)}, token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
