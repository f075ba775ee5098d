// Package storage persists bounty history.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/mohtion/mohtion/internal/storage/sqlite"
	"github.com/mohtion/mohtion/internal/types"
)

// ErrNotFound is returned when a bounty ID is unknown
var ErrNotFound = sqlite.ErrNotFound

// Filter narrows ListBounties
type Filter = sqlite.Filter

// Storage defines the interface for bounty storage backends
type Storage interface {
	// SaveBounty inserts or replaces a bounty by ID
	SaveBounty(ctx context.Context, b *types.BountyResult) error
	GetBounty(ctx context.Context, id string) (*types.BountyResult, error)
	// ListBounties returns the newest bounties first
	ListBounties(ctx context.Context, filter Filter) ([]*types.BountyResult, error)
	// CountSince counts attempts against owner/repo started at or after since
	CountSince(ctx context.Context, owner, repo string, since time.Time) (int, error)

	Close() error
}

// Config holds storage configuration
type Config struct {
	// Path is the database file
	Path string
}

// NewStorage opens the sqlite backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	store, err := sqlite.New(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	return store, nil
}
