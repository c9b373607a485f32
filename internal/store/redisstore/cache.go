package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-engine/internal/promotion"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete drops the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// CachedPromotions serves the promotion list from Redis, falling back to the
// wrapped catalog on a miss. Cache failures are logged and bypassed.
type CachedPromotions struct {
	Next   promotion.Catalog
	Cache  *Cache
	Key    string
	Logger zerolog.Logger
}

func (c *CachedPromotions) key() string {
	if c.Key == "" {
		return defaultPrefix + ":promotions"
	}
	return c.Key
}

// Promotions returns the full catalog with name terms prepared.
func (c *CachedPromotions) Promotions(ctx context.Context) ([]promotion.Promotion, error) {
	var cached []promotion.Promotion
	hit, err := c.Cache.GetJSON(ctx, c.key(), &cached)
	if err != nil {
		c.Logger.Warn().Err(err).Msg("promotion cache read failed")
	}
	if hit {
		for i := range cached {
			cached[i] = cached[i].Prepared()
		}
		return cached, nil
	}
	promos, err := c.Next.Promotions(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.SetJSON(ctx, c.key(), promos); err != nil {
		c.Logger.Warn().Err(err).Msg("promotion cache write failed")
	}
	return promos, nil
}

// FindByID looks the promotion up in the cached list.
func (c *CachedPromotions) FindByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	promos, err := c.Promotions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range promos {
		if p.ID == id {
			found := p
			return &found, nil
		}
	}
	return nil, promotion.ErrNotFound
}

// Invalidate removes the cached list so the next read hits the source.
func (c *CachedPromotions) Invalidate(ctx context.Context) error {
	return c.Cache.Delete(ctx, c.key())
}
