package repo

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

type Redis struct{ C *redis.Client }

func NewRedis(addr string) *Redis {
	return &Redis{C: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *Redis) Ping(ctx context.Context) error { return r.C.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.C.Close() }

// RedisThrottle counts failed sign-ins per email in a fixed window shared by
// every server instance. Keys carry only a hash of the address.
type RedisThrottle struct {
	r      *Redis
	max    int64
	window time.Duration
}

func NewRedisThrottle(r *Redis, limit int, window time.Duration) *RedisThrottle {
	return &RedisThrottle{r: r, max: int64(limit), window: window}
}

func (t *RedisThrottle) Blocked(ctx context.Context, email string) (bool, error) {
	if t.max <= 0 {
		return false, nil
	}
	n, err := t.r.C.Get(ctx, throttleKey(email)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n >= t.max, nil
}

func (t *RedisThrottle) Failed(ctx context.Context, email string) error {
	key := throttleKey(email)
	n, err := t.r.C.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		return t.r.C.Expire(ctx, key, t.window).Err()
	}
	return nil
}

func (t *RedisThrottle) Reset(ctx context.Context, email string) error {
	return t.r.C.Del(ctx, throttleKey(email)).Err()
}
