package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/le-tueur/chatvc/internal/models"
)

// FileDB stores the snapshot as an indented JSON file.
type FileDB struct {
	mu   sync.Mutex
	path string
}

func NewFileDB(path string) *FileDB {
	return &FileDB{path: path}
}

func (db *FileDB) LoadState(ctx context.Context) (*models.Snapshot, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	data, err := os.ReadFile(db.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	snap := &models.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to decode state file: %w", err)
	}
	return snap, nil
}

func (db *FileDB) SaveState(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	// Written beside the target, then renamed into place.
	tmp, err := os.CreateTemp(filepath.Dir(db.path), ".chat_state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), db.path)
}

func (db *FileDB) Close() error {
	return nil
}
