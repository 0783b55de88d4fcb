// Package lock provides named, expiring locks for jobs that must run on a
// single instance at a time.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Release gives the lock back. It is safe to call more than once.
type Release func(ctx context.Context) error

// Locker acquires named locks. ok is false when someone else holds key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release Release, ok bool, err error)
}

// Memory is a Locker for a single process.
type Memory struct {
	c *gocache.Cache
}

func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *Memory) TryLock(_ context.Context, key string, ttl time.Duration) (Release, bool, error) {
	token := newToken()
	// Add fails when the key exists and has not expired.
	if err := m.c.Add(key, token, ttl); err != nil {
		return nil, false, nil
	}
	return func(context.Context) error {
		if v, ok := m.c.Get(key); ok && v == token {
			m.c.Delete(key)
		}
		return nil
	}, true, nil
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every instance talking to the same server.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("lock: redis ping failed: %w", err)
	}
	return NewRedisWithClient(rdb, cfg.Prefix), nil
}

func NewRedisWithClient(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "koruforms:lock"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + ":" + k }

func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (Release, bool, error) {
	k := r.key(key)
	token := newToken()
	ok, err := r.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("lock: release %s: %w", key, err)
		}
		return nil
	}, true, nil
}

func (r *Redis) Close() error { return r.client.Close() }

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
