package storage

import (
	"context"
	"fmt"
	"time"

	"llm_console/internal/logging"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the Redis connection and provides health checks
type RedisClient struct {
	client *redis.Client
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address  string // host:port
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:      "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisClient creates a new Redis client. An unreachable server is logged
// and tolerated: the console keeps serving and reports redis=false until the
// store comes back.
func NewRedisClient(cfg RedisConfig, logger *logging.Logger) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable at startup", "address", cfg.Address, "error", err)
	} else {
		logger.Info("connected to redis", "address", cfg.Address)
	}

	return &RedisClient{client: client}
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Health performs a write/read round trip on a short-lived key
func (r *RedisClient) Health(ctx context.Context) error {
	if err := r.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	if err := r.client.Set(ctx, "health_check", "ok", 1*time.Second).Err(); err != nil {
		return fmt.Errorf("redis write failed: %w", err)
	}

	val, err := r.client.Get(ctx, "health_check").Result()
	if err != nil {
		return fmt.Errorf("redis read failed: %w", err)
	}

	if val != "ok" {
		return fmt.Errorf("redis health check value mismatch")
	}

	return nil
}

// Client returns the underlying Redis client
func (r *RedisClient) Client() *redis.Client {
	return r.client
}
