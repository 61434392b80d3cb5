package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTokenKeyPrefix = "crm:token:"

// RedisTokenStore implements TokenStore using Redis, sharing tokens across instances
type RedisTokenStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisTokenStore connects to Redis and verifies the connection
func NewRedisTokenStore(cfg RedisConfig) (*RedisTokenStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisTokenStore{
		client:    client,
		keyPrefix: defaultTokenKeyPrefix,
	}, nil
}

// NewRedisTokenStoreWithClient creates a store with an existing Redis client
func NewRedisTokenStoreWithClient(client *redis.Client, keyPrefix string) *RedisTokenStore {
	if keyPrefix == "" {
		keyPrefix = defaultTokenKeyPrefix
	}
	return &RedisTokenStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the cached token
func (s *RedisTokenStore) Get(ctx context.Context, key string) (string, error) {
	token, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}

// Set stores the token with a TTL
func (s *RedisTokenStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Delete removes the token
func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisTokenStore) Close() error {
	return s.client.Close()
}

var _ TokenStore = (*RedisTokenStore)(nil)
