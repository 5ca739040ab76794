package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/le-tueur/chatvc/internal/models"
	"github.com/le-tueur/chatvc/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// RedisDB keeps the snapshot under a single key.
type RedisDB struct {
	client *redis.Client
	key    string
}

// NewRedisDB accepts either a redis:// or rediss:// URL or a bare host:port.
func NewRedisDB(url, key string) (*RedisDB, error) {
	opts, err := redisOptions(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Redis initialized with address: %s", opts.Addr)
	return &RedisDB{client: client, key: key}, nil
}

func redisOptions(url string) (*redis.Options, error) {
	if !strings.Contains(url, "://") {
		return &redis.Options{Addr: url, DB: 0}, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return opts, nil
}

func (db *RedisDB) LoadState(ctx context.Context) (*models.Snapshot, error) {
	data, err := db.client.Get(ctx, db.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	snap := &models.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return snap, nil
}

func (db *RedisDB) SaveState(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := db.client.Set(ctx, db.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (db *RedisDB) Close() error {
	return db.client.Close()
}
