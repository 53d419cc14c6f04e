package store

import (
	"context"
	"errors"
	"fmt"

	"slotwatch/internal/config"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "slotwatch:"

// RedisStore persists values in Redis under a common prefix.
type RedisStore struct {
	client *redis.Client
	hub    *watchHub
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		hub:    newWatchHub(),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.client == nil {
		return nil, errors.New("redis client is nil")
	}
	val, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if s.client == nil {
		return errors.New("redis client is nil")
	}

	// Старое значение нужно наблюдателям; гонки между агентами нет,
	// очередь принадлежит одному процессу.
	old, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	s.hub.dispatch(key, value, old)
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if s.client == nil {
		return errors.New("redis client is nil")
	}

	old, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}

	if old != nil {
		s.hub.dispatch(key, nil, old)
	}
	return nil
}

func (s *RedisStore) Watch(key string, fn func(newValue, oldValue []byte)) {
	s.hub.add(key, fn)
}

func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
