package premium

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const cachePrefix = "premium:"

// Cached puts a Redis read-through cache in front of another Store. Redis
// failures fall through to the backing store.
type Cached struct {
	Store
	rdb *redis.Client
	ttl time.Duration
	log waLog.Logger
}

func NewCached(backing Store, rdb *redis.Client, ttl time.Duration, log waLog.Logger) *Cached {
	if log == nil {
		log = waLog.Noop
	}
	return &Cached{Store: backing, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(number string) string { return cachePrefix + number }

func (c *Cached) IsPremium(ctx context.Context, sender types.JID) (bool, error) {
	n := Normalize(sender)
	if n == "" {
		return false, nil
	}

	val, err := c.rdb.Get(ctx, cacheKey(n)).Result()
	switch {
	case err == nil:
		return val == "1", nil
	case !errors.Is(err, redis.Nil):
		c.log.Warnf("Redis premium lookup for %s failed: %v", n, err)
	}

	ok, err := c.Store.IsPremium(ctx, sender)
	if err != nil {
		return false, err
	}
	flag := "0"
	if ok {
		flag = "1"
	}
	if err := c.rdb.Set(ctx, cacheKey(n), flag, c.ttl).Err(); err != nil {
		c.log.Warnf("Redis premium save for %s failed: %v", n, err)
	}
	return ok, nil
}

func (c *Cached) Add(ctx context.Context, e Entry) error {
	if err := c.Store.Add(ctx, e); err != nil {
		return err
	}
	c.forget(ctx, e.Number)
	return nil
}

func (c *Cached) Remove(ctx context.Context, number string) error {
	err := c.Store.Remove(ctx, number)
	c.forget(ctx, number)
	return err
}

func (c *Cached) forget(ctx context.Context, number string) {
	if err := c.rdb.Del(ctx, cacheKey(NormalizeNumber(number))).Err(); err != nil {
		c.log.Warnf("Redis premium invalidate for %s failed: %v", number, err)
	}
}
