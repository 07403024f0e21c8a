// Package redis caches rendered chart results so repeated queries against an
// unchanged dataset skip aggregation. The cache is optional: every failure is
// reported to the caller, which falls back to computing the result.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/pkg/circuitbreaker"
	"github.com/fleetlens/backend/pkg/logger"
	"github.com/fleetlens/backend/pkg/retry"
)

const chartPrefix = "chart"

type Client struct {
	client  *redis.Client
	breaker *circuitbreaker.Breaker
	policy  retry.Policy
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	c := &Client{
		client: client,
		breaker: circuitbreaker.New("redis", circuitbreaker.Config{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		}),
		policy: retry.DefaultPolicy("redis"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.do(ctx, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))
	return c, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ChartKey is the redis key of one chart result: the dataset's cache key and a
// fingerprint of the query.
func ChartKey(datasetKey, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%s", chartPrefix, datasetKey, fingerprint)
}

func datasetPattern(datasetKey string) string {
	return fmt.Sprintf("%s:%s:*", chartPrefix, datasetKey)
}

// do runs op through the breaker and retries transient failures. An open
// breaker is not retried.
func (c *Client) do(ctx context.Context, op func(ctx context.Context) error) error {
	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		err := c.breaker.Execute(func() error { return op(ctx) })
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return retry.Permanent(err)
		}
		return err
	})
}

func (c *Client) SetChart(ctx context.Context, datasetKey, fingerprint string, result any, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal chart result: %w", err)
	}

	key := ChartKey(datasetKey, fingerprint)
	err = c.do(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, key, data, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set chart cache: %w", err)
	}

	logger.Debug("Chart result cached", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// GetChart decodes a cached result into out. A miss returns false and no error.
func (c *Client) GetChart(ctx context.Context, datasetKey, fingerprint string, out any) (bool, error) {
	key := ChartKey(datasetKey, fingerprint)

	var data []byte
	err := c.do(ctx, func(ctx context.Context) error {
		b, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			data = nil
			return nil
		}
		data = b
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to get chart cache: %w", err)
	}
	if data == nil {
		return false, nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal chart result: %w", err)
	}

	logger.Debug("Chart cache hit", zap.String("key", key))
	return true, nil
}

// InvalidateDataset drops every cached chart of a dataset and returns how many
// keys were removed.
func (c *Client) InvalidateDataset(ctx context.Context, datasetKey string) (int, error) {
	removed := 0
	err := c.do(ctx, func(ctx context.Context) error {
		removed = 0
		iter := c.client.Scan(ctx, 0, datasetPattern(datasetKey), 100).Iterator()
		for iter.Next(ctx) {
			n, err := c.client.Del(ctx, iter.Val()).Result()
			if err != nil {
				logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
				continue
			}
			removed += int(n)
		}
		return iter.Err()
	})
	if err != nil {
		return removed, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Chart cache invalidated", zap.String("dataset", datasetKey), zap.Int("keys", removed))
	return removed, nil
}
