// Package rediscache keeps the fitted seasonal models and adaptive
// threshold state in Redis so repeated runs skip refitting. On any
// Redis failure callers fall through to a fresh fit; the cache is an
// optimization, never a source of truth.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/founderpulse/insights/internal/anomaly"
)

// Cache implements anomaly.ModelCache on Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects a cache with the given TTL for model entries.
func New(addr string, db int, ttl time.Duration) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		ttl:    ttl,
	}
}

// Ping verifies connectivity at startup.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *Cache) Close() error { return c.client.Close() }

func modelKey(tenant, kpi string) string {
	return fmt.Sprintf("insights:model:%s:%s", tenant, kpi)
}

// GetModel loads a cached seasonal model, nil when absent.
func (c *Cache) GetModel(ctx context.Context, tenant, kpi string) (*anomaly.SeasonalModel, error) {
	data, err := c.client.Get(ctx, modelKey(tenant, kpi)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get model %s/%s: %w", tenant, kpi, err)
	}

	var m anomaly.SeasonalModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model %s/%s: %w", tenant, kpi, err)
	}
	return &m, nil
}

// PutModel stores a fitted model with the configured TTL.
func (c *Cache) PutModel(ctx context.Context, tenant, kpi string, m *anomaly.SeasonalModel) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode model %s/%s: %w", tenant, kpi, err)
	}
	if err := c.client.Set(ctx, modelKey(tenant, kpi), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("put model %s/%s: %w", tenant, kpi, err)
	}
	return nil
}

var _ anomaly.ModelCache = (*Cache)(nil)
