package threadlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/typegpt/internal/crypto"
)

const (
	keyPrefix = "typegpt:thread-lock:"

	// releaseScript deletes the key only while it still holds our token.
	releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
	// refreshScript extends the key only while it still holds our token.
	refreshScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`
)

// RedisClient is the part of *redis.Client the locker uses.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Redis is a Locker shared by every instance connected to the same Redis.
// The key expires after ttl unless the holder is still alive to refresh it,
// so a crashed instance cannot wedge a thread.
type Redis struct {
	client RedisClient
	ttl    time.Duration
	retry  time.Duration
	log    *zap.Logger
}

// NewRedis returns a Redis-backed locker.
func NewRedis(client RedisClient, ttl, retry time.Duration, log *zap.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, retry: retry, log: log}
}

// Lock implements Locker.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token, err := crypto.NewToken()
	if err != nil {
		return nil, err
	}
	k := keyPrefix + key

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("thread lock %s: %w", key, err)
		}
		if ok {
			break
		}
		t := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.client.Eval(ctx, releaseScript, []string{k}, token).Err(); err != nil {
				r.log.Warn("thread lock release failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

func (r *Redis) keepAlive(k, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tick := time.NewTicker(r.ttl / 3)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			err := r.client.Eval(ctx, refreshScript, []string{k}, token, r.ttl.Milliseconds()).Err()
			cancel()
			if err != nil {
				r.log.Warn("thread lock refresh failed", zap.String("key", k), zap.Error(err))
			}
		}
	}
}
