// Package quota implements the daily request counter on Redis. INCR
// against a per-user per-UTC-day key makes check-and-consume atomic
// across the day boundary.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func key(userID uint, now time.Time) string {
	return fmt.Sprintf("quota:requests:%d:%s", userID, now.UTC().Format("2006-01-02"))
}

func (q *Redis) Consume(ctx context.Context, userID uint, now time.Time) (int, error) {
	k := key(userID, now)
	expireAt := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	pipe := q.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireAt(ctx, k, expireAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (q *Redis) Release(ctx context.Context, userID uint, now time.Time) error {
	return q.client.Decr(ctx, key(userID, now)).Err()
}
