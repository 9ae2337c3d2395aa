package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pushgate/internal/quiethours"
	"pushgate/pkg/logx"
)

const redisKeyPrefix = "pushgate:schedule:"

type redisStore struct {
	client *redis.Client
	log    logx.Logger
	key    string
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisStore(client, cfg, log), nil
}

func newRedisStore(client *redis.Client, cfg Config, log logx.Logger) *redisStore {
	return &redisStore{client: client, log: log, key: redisKeyPrefix + cfg.key()}
}

func (s *redisStore) Driver() string { return "redis" }

func (s *redisStore) Load(ctx context.Context) (quiethours.Schedule, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return quiethours.Schedule{}, ErrNotFound
	}
	if err != nil {
		return quiethours.Schedule{}, err
	}
	return decodeRecord(raw)
}

// Save writes without expiry; the record lives until overwritten.
func (s *redisStore) Save(ctx context.Context, sched quiethours.Schedule) error {
	rec, err := encodeRecord(sched)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, rec, 0).Err()
}

func (s *redisStore) Close() error { return s.client.Close() }
