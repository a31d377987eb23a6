package cachesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/order"
)

const keyPrefix = "campus:"

// NewRedisClient connects to redis and pings it.
func NewRedisClient(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        conf.Addr,
		Password:    conf.Password,
		DB:          conf.DB,
		DialTimeout: conf.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// RedisDeduper remembers keys for ttl with SETNX.
type RedisDeduper struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ order.Deduper = (*RedisDeduper)(nil)

func NewRedisDeduper(client redis.Cmdable, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis SETNX")
	}
	return ok, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	return errors.Wrap(d.client.Del(ctx, keyPrefix+key).Err(), "redis DEL")
}
