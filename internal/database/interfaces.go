package database

import (
	"context"
	"errors"

	"github.com/le-tueur/chatvc/internal/models"
)

// ErrNoSnapshot is returned by LoadState when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// StateRepository persists the whole moderation state as one document.
// Saves are last-writer-wins.
type StateRepository interface {
	LoadState(ctx context.Context) (*models.Snapshot, error)
	SaveState(ctx context.Context, snap *models.Snapshot) error
	Close() error
}
