package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/le-tueur/chatvc/internal/models"
	"github.com/le-tueur/chatvc/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The chat has a single global room, so the state lives in one row.
const stateRowID = 1

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &PostgresDB{pool: pool}
	if err := db.migrate(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Connected to database successfully")
	return db, nil
}

func (db *PostgresDB) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS chat_state (
			id         INTEGER PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`

	if _, err := db.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create chat_state table: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func (db *PostgresDB) LoadState(ctx context.Context) (*models.Snapshot, error) {
	query := `SELECT data FROM chat_state WHERE id = $1`

	var data []byte
	err := db.pool.QueryRow(ctx, query, stateRowID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (db *PostgresDB) SaveState(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO chat_state (id, data, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`

	if _, err := db.pool.Exec(ctx, query, stateRowID, string(data)); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}
