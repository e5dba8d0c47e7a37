package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig holds Redis lock configuration
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
	Wait     time.Duration
	Prefix   string
}

// RedisLocker implements Locker with SET NX PX leases shared across processes
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	prefix string
	retry  time.Duration
}

// NewRedisLocker connects to Redis and returns a locker
func NewRedisLocker(ctx context.Context, cfg RedisConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisLocker(client, cfg), nil
}

func newRedisLocker(client *redis.Client, cfg RedisConfig) *RedisLocker {
	l := &RedisLocker{
		client: client,
		ttl:    cfg.TTL,
		wait:   cfg.Wait,
		prefix: cfg.Prefix,
		retry:  50 * time.Millisecond,
	}
	if l.ttl <= 0 {
		l.ttl = 30 * time.Second
	}
	if l.prefix == "" {
		l.prefix = "clubs:lock:"
	}
	return l
}

// Acquire polls SET NX until the lease is taken or the wait window passes
func (l *RedisLocker) Acquire(ctx context.Context, name string) (Release, error) {
	key := l.prefix + name
	token := uuid.NewString()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		if ok {
			slog.Debug("lock acquired", "lock", name, "ttl", l.ttl)
			return l.release(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, name, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(key, token string) Release {
	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		if n == 0 {
			slog.Warn("lock lease expired before release", "key", key)
		}
		return nil
	}
}

// Ping checks Redis connectivity
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
