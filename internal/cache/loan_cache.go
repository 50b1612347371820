// Package cache keeps hot loan reads out of Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segyhp/loan-tracker/internal/config"
	"github.com/segyhp/loan-tracker/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LoanCache stores fully assembled loans, payments included
type LoanCache interface {
	// Get returns the cached loan, or nil on a miss
	Get(ctx context.Context, id string) (*domain.Loan, error)

	// Set caches loan under its id
	Set(ctx context.Context, loan *domain.Loan) error

	// Invalidate drops the cached copy of the loan
	Invalidate(ctx context.Context, id string) error
}

// NewRedisClient builds a client from REDIS_URL when set, otherwise from
// host, port and db
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return redis.NewClient(opts), nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// RedisLoanCache implements LoanCache using Redis. A nil client turns every
// call into a miss or no-op.
type RedisLoanCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLoanCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLoanCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLoanCache{client: client, ttl: ttl, logger: logger.Named("cache")}
}

// Key is the redis key a loan is cached under
func Key(id string) string {
	return fmt.Sprintf("loan:%s", id)
}

func (c *RedisLoanCache) Get(ctx context.Context, id string) (*domain.Loan, error) {
	if c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("cache miss", zap.String("loan_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan from cache: %w", err)
	}

	var loan domain.Loan
	if err := json.Unmarshal(data, &loan); err != nil {
		return nil, fmt.Errorf("failed to decode cached loan: %w", err)
	}
	loan.Recalculate()
	return &loan, nil
}

func (c *RedisLoanCache) Set(ctx context.Context, loan *domain.Loan) error {
	if c.client == nil {
		return nil
	}

	data, err := json.Marshal(loan)
	if err != nil {
		return fmt.Errorf("failed to encode loan: %w", err)
	}
	if err := c.client.Set(ctx, Key(loan.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache loan: %w", err)
	}
	return nil
}

func (c *RedisLoanCache) Invalidate(ctx context.Context, id string) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, Key(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate loan: %w", err)
	}
	return nil
}

var _ LoanCache = (*RedisLoanCache)(nil)
