package countstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys are namespaced so the counters can share a redis with the cachestore.
var countKeyPrefix = "sift/count/"
var distinctKeyPrefix = "sift/distinct/"

// Hour and day buckets expire on their own; totals are kept forever.
var periodTTLs = []struct {
	period string
	ttl    time.Duration
}{
	{PeriodHour, 2 * time.Hour},
	{PeriodDay, 48 * time.Hour},
	{PeriodTotal, 0},
}

// RedisCountStore backs counters with redis, for deployments where more than
// one daemon process evaluates accounts. Distinct counts use HyperLogLog, so
// commenter cardinality stays cheap on busy posts.
type RedisCountStore struct {
	Client *redis.Client
}

var _ CountStore = (*RedisCountStore)(nil)

func NewRedisCountStore(redisURL string) (*RedisCountStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(context.TODO()).Result(); err != nil {
		return nil, err
	}
	return &RedisCountStore{Client: rdb}, nil
}

func (s *RedisCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	c, err := s.Client.Get(ctx, countKeyPrefix+periodBucket(name, val, period)).Int()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return c, nil
}

func (s *RedisCountStore) Increment(ctx context.Context, name, val string) error {
	// all period buckets in a single round-trip
	multi := s.Client.Pipeline()
	for _, p := range periodTTLs {
		key := countKeyPrefix + periodBucket(name, val, p.period)
		multi.Incr(ctx, key)
		if p.ttl > 0 {
			multi.Expire(ctx, key, p.ttl)
		}
	}
	_, err := multi.Exec(ctx)
	return err
}

func (s *RedisCountStore) GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error) {
	c, err := s.Client.PFCount(ctx, distinctKeyPrefix+periodBucket(name, bucket, period)).Result()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return int(c), nil
}

func (s *RedisCountStore) IncrementDistinct(ctx context.Context, name, bucket, val string) error {
	multi := s.Client.Pipeline()
	for _, p := range periodTTLs {
		key := distinctKeyPrefix + periodBucket(name, bucket, p.period)
		multi.PFAdd(ctx, key, val)
		if p.ttl > 0 {
			multi.Expire(ctx, key, p.ttl)
		}
	}
	_, err := multi.Exec(ctx)
	return err
}
