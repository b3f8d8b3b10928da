package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKeyPrefix  = "bunnyclock:"
	absentSentinel  = "null"
	defaultCacheTTL = time.Minute
)

type CacheConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisClient(ctx context.Context, cfg CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// CachedDatabase is a read-through Redis cache in front of another DatabaseService.
// Confirmed absences are cached too; integrity errors never are.
type CachedDatabase struct {
	DatabaseService

	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

func NewCachedDatabase(inner DatabaseService, client *redis.Client, ttl time.Duration) *CachedDatabase {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedDatabase{
		DatabaseService: inner,
		client:          client,
		ttl:             ttl,
	}
}

func slotKey(hour, minute int) string {
	return fmt.Sprintf("%sslot:%02d:%02d", cacheKeyPrefix, hour, minute)
}

func previewCacheKey(key string) string {
	return cacheKeyPrefix + "preview:" + key
}

func (c *CachedDatabase) FindByHourMinute(ctx context.Context, hour, minute int) (*TimeImage, error) {
	return c.lookup(ctx, slotKey(hour, minute), func(loadCtx context.Context) (*TimeImage, error) {
		return c.DatabaseService.FindByHourMinute(loadCtx, hour, minute)
	})
}

func (c *CachedDatabase) FindByPreviewKey(ctx context.Context, key string) (*TimeImage, error) {
	return c.lookup(ctx, previewCacheKey(key), func(loadCtx context.Context) (*TimeImage, error) {
		return c.DatabaseService.FindByPreviewKey(loadCtx, key)
	})
}

func (c *CachedDatabase) InsertTimeImage(ctx context.Context, image *TimeImage) (string, error) {
	id, err := c.DatabaseService.InsertTimeImage(ctx, image)
	if err != nil {
		return "", err
	}
	keys := []string{slotKey(image.Hour, image.Minute)}
	if image.PreviewKey != nil {
		keys = append(keys, previewCacheKey(*image.PreviewKey))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache: failed to invalidate keys", "keys", keys, "error", err)
	}
	return id, nil
}

func (c *CachedDatabase) Close() error {
	cacheErr := c.client.Close()
	return errors.Join(c.DatabaseService.Close(), cacheErr)
}

// lookup shares one store load per key between concurrent callers. The shared load runs
// detached from any single caller's cancellation; each caller still stops waiting when its
// own context ends.
func (c *CachedDatabase) lookup(ctx context.Context, key string, load func(context.Context) (*TimeImage, error)) (*TimeImage, error) {
	if image, ok := c.get(ctx, key); ok {
		return image, nil
	}

	shared := context.WithoutCancel(ctx)
	results := c.group.DoChan(key, func() (any, error) {
		image, err := load(shared)
		if err != nil {
			return nil, err
		}
		c.set(shared, key, image)
		return image, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		image, _ := res.Val.(*TimeImage)
		// singleflight shares one pointer between callers
		return image.Clone(), nil
	}
}

func (c *CachedDatabase) get(ctx context.Context, key string) (*TimeImage, bool) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache: read failed, falling back to store", "key", key, "error", err)
		}
		return nil, false
	}
	if raw == absentSentinel {
		return nil, true
	}
	var image TimeImage
	if err := json.Unmarshal([]byte(raw), &image); err != nil {
		slog.Warn("cache: dropping undecodable entry", "key", key, "error", err)
		return nil, false
	}
	return &image, true
}

func (c *CachedDatabase) set(ctx context.Context, key string, image *TimeImage) {
	payload := []byte(absentSentinel)
	if image != nil {
		encoded, err := json.Marshal(image)
		if err != nil {
			slog.Warn("cache: failed to encode entry", "key", key, "error", err)
			return
		}
		payload = encoded
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		slog.Warn("cache: write failed", "key", key, "error", err)
	}
}
