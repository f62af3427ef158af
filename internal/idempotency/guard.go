// Package idempotency не даёт двум запросам с одним ключом идемпотентности
// выполнять продажу одновременно.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrInProgress возвращается, если ключ уже удерживается другим запросом.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

const releaseTimeout = 2 * time.Second

// ReleaseFunc освобождает захваченный ключ. Ошибка означает, что ключ
// останется занятым до истечения TTL.
type ReleaseFunc func() error

// RedisGuard хранит захваченные ключи в Redis, поэтому работает между несколькими экземплярами сервиса.
type RedisGuard struct {
	R   *redis.Client
	TTL time.Duration
}

// NewRedisGuard создаёт защиту от повторов на базе Redis.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisGuard{R: client, TTL: ttl}
}

func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "checkout:idem:" + hex.EncodeToString(sum[:])
}

// Acquire захватывает ключ на время TTL. Ключ освобождается только владельцем.
func (g *RedisGuard) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	if g.R == nil {
		return nil, errors.New("idempotency: redis client not configured")
	}

	rkey := redisKey(key)
	token := uuid.NewString()

	ok, err := g.R.SetNX(ctx, rkey, token, g.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if !ok {
		return nil, ErrInProgress
	}

	return func() error {
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		err := g.R.Eval(rctx, releaseScript, []string{rkey}, token).Err()
		if err == nil {
			return nil
		}
		if !strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			return fmt.Errorf("release idempotency key: %w", err)
		}
		if err := g.R.Del(rctx, rkey).Err(); err != nil {
			return fmt.Errorf("release idempotency key: %w", err)
		}
		return nil
	}, nil
}

// LocalGuard хранит захваченные ключи в памяти процесса. Используется, когда Redis не настроен.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalGuard создаёт защиту от повторов в памяти процесса.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

// Acquire захватывает ключ до вызова ReleaseFunc.
func (g *LocalGuard) Acquire(_ context.Context, key string) (ReleaseFunc, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[key]; ok {
		return nil, ErrInProgress
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() error {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
		return nil
	}, nil
}
