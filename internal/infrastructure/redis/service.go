package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yagpt/gateway/pkg/logger"
)

var ErrNotConfigured = errors.New("redis address not configured")

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Service struct {
	client *redis.Client
}

// NewService connects to Redis and verifies the connection with a ping
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	log := logger.For(logger.REDIS)

	if cfg.Addr == "" {
		log.Warn().Msg("Redis address not configured - service will be unavailable")
		return nil, ErrNotConfigured
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Error().
			Err(err).
			Str("addr", cfg.Addr).
			Msg("Failed to establish Redis connection")
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Service{
		client: client,
	}, nil
}

// RPush appends values to the tail of a list
func (s *Service) RPush(ctx context.Context, key string, values ...interface{}) error {
	if err := s.client.RPush(ctx, key, values...).Err(); err != nil {
		log := logger.For(logger.REDIS)
		log.Error().
			Err(err).
			Str("key", key).
			Msg("Redis RPUSH operation failed")
		return err
	}
	return nil
}

// AppendTrimmed appends values and keeps only the newest maxLen elements in one transaction.
// maxLen of zero disables trimming.
func (s *Service) AppendTrimmed(ctx context.Context, key string, maxLen int, values ...interface{}) error {
	if maxLen <= 0 {
		return s.RPush(ctx, key, values...)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-maxLen), -1)
		return nil
	})
	if err != nil {
		log := logger.For(logger.REDIS)
		log.Error().
			Err(err).
			Str("key", key).
			Int("max_len", maxLen).
			Msg("Redis RPUSH/LTRIM transaction failed")
		return err
	}
	return nil
}

// LRange returns every element of a list, or an empty slice for a missing key
func (s *Service) LRange(ctx context.Context, key string) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		log := logger.For(logger.REDIS)
		log.Error().
			Err(err).
			Str("key", key).
			Msg("Redis LRANGE operation failed")
		return nil, err
	}
	return vals, nil
}

// Delete removes a key from Redis
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping checks if Redis is accessible
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Service) Close() error {
	return s.client.Close()
}
