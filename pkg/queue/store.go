package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var errEmpty = errors.New("queue empty")

// store is the list and sorted-set surface the queue needs.
type store interface {
	Push(ctx context.Context, key string, data []byte) error
	Pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error)
	Schedule(ctx context.Context, key string, data []byte, at time.Time) error
	Due(ctx context.Context, key string, now time.Time) ([]string, error)
	Promote(ctx context.Context, from, to, member string) error
	Len(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
}

type redisStore struct {
	client redis.UniversalClient
}

func (s redisStore) Push(ctx context.Context, key string, data []byte) error {
	return s.client.LPush(ctx, key, data).Err()
}

func (s redisStore) Pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	res, err := s.client.BRPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errEmpty
		}
		return nil, err
	}
	if len(res) < 2 {
		return nil, errEmpty
	}
	return []byte(res[1]), nil
}

func (s redisStore) Schedule(ctx context.Context, key string, data []byte, at time.Time) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: float64(at.Unix()), Member: data}).Err()
}

func (s redisStore) Due(ctx context.Context, key string, now time.Time) ([]string, error) {
	return s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
}

// Promote moves member from the retry set back onto the list atomically.
func (s redisStore) Promote(ctx context.Context, from, to, member string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, from, member)
	pipe.LPush(ctx, to, member)
	_, err := pipe.Exec(ctx)
	return err
}

func (s redisStore) Len(ctx context.Context, key string) (int64, error) {
	t, err := s.client.Type(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if t == "zset" {
		return s.client.ZCard(ctx, key).Result()
	}
	return s.client.LLen(ctx, key).Result()
}

func (s redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
