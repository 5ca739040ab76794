package database

import (
	"fmt"

	"github.com/le-tueur/chatvc/internal/config"
)

// Open returns the backend selected by cfg.Backend.
func Open(cfg config.StorageConfig) (StateRepository, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemoryDB(), nil
	case config.BackendFile:
		return NewFileDB(cfg.StateFile), nil
	case config.BackendPostgres:
		db, err := NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.BackendRedis:
		db, err := NewRedisDB(cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
