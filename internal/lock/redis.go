package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// unlockScript deletes the key only while it still holds our token, so an
// expired lock taken over by another worker is left alone.
const unlockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// refreshScript extends the key's expiry while it still holds our token.
const refreshScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// redisClient is the subset of *redis.Client used here.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Redis is a Locker shared by every process pointed at the same server.
// Keys expire after ttl so a crashed worker cannot hold a report forever; a
// live holder extends the expiry every ttl/3 until it releases.
type Redis struct {
	client redisClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis parses url (redis://host:port/db) and pings the server.
func NewRedis(ctx context.Context, url string, ttl time.Duration, logger *zap.Logger) (*Redis, func() error, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, eris.Wrap(err, "lock: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, nil, eris.Wrap(err, "lock: ping redis")
	}
	return newRedis(client, ttl, logger), client.Close, nil
}

func newRedis(client redisClient, ttl time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.L()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Redis{client: client, prefix: "sitrep:lock:", ttl: ttl, logger: logger}
}

// Acquire implements Locker.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), bool, error) {
	k := r.prefix + key
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, false, eris.Wrapf(err, "lock: acquire %s", key)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The caller's context may already be canceled.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.client.Eval(ctx, unlockScript, []string{k}, token).Err(); err != nil {
				r.logger.Warn("lock: release failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, true, nil
}

// keepAlive refreshes the expiry of k until stop closes or the key no
// longer holds token.
func (r *Redis) keepAlive(k, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(r.ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := r.client.Eval(ctx, refreshScript, []string{k}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				r.logger.Warn("lock: refresh failed", zap.String("key", k), zap.Error(err))
				continue
			}
			if n == 0 {
				r.logger.Error("lock: lost before release", zap.String("key", k))
				return
			}
		}
	}
}
