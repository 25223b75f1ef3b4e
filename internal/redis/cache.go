package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ViewCache stores JSON encoded read models under caller-chosen keys. The
// user service binds it to models.UserView, so entries never carry a
// credential. A ttl of 0 keeps entries until they are evicted.
//
// Redis failures never reach the caller: reads degrade to a miss and writes
// are dropped, each with a warning.
type ViewCache[T any] struct {
	client goredis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewViewCache binds a cache to client. A nil logger means slog.Default().
func NewViewCache[T any](client goredis.Cmdable, ttl time.Duration, logger *slog.Logger) *ViewCache[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewCache[T]{client: client, ttl: ttl, logger: logger}
}

func (c *ViewCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == goredis.Nil:
		return nil, false
	case err != nil:
		c.warn(ctx, "view cache read failed", key, err)
		return nil, false
	}

	view := new(T)
	if err := json.Unmarshal(raw, view); err != nil {
		c.warn(ctx, "view cache entry undecodable", key, err)
		return nil, false
	}
	return view, true
}

func (c *ViewCache[T]) Set(ctx context.Context, key string, view *T) {
	raw, err := json.Marshal(view)
	if err != nil {
		c.warn(ctx, "view cache marshal failed", key, err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.warn(ctx, "view cache write failed", key, err)
	}
}

// Delete evicts key. Evicting a missing key is not an error.
func (c *ViewCache[T]) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.warn(ctx, "view cache evict failed", key, err)
	}
}

func (c *ViewCache[T]) warn(ctx context.Context, msg, key string, err error) {
	c.logger.WarnContext(ctx, msg, slog.String("key", key), slog.Any("error", err))
}
