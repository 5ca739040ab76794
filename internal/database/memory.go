package database

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/le-tueur/chatvc/internal/models"
)

// MemoryDB keeps the encoded snapshot in process memory.
type MemoryDB struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{}
}

func (db *MemoryDB) LoadState(ctx context.Context) (*models.Snapshot, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.data == nil {
		return nil, ErrNoSnapshot
	}
	snap := &models.Snapshot{}
	if err := json.Unmarshal(db.data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (db *MemoryDB) SaveState(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	db.data = data
	db.saves++
	return nil
}

// Saves returns how many writes reached the backend.
func (db *MemoryDB) Saves() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.saves
}

func (db *MemoryDB) Close() error {
	return nil
}
