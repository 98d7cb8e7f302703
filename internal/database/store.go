package database

import (
	"context"
	"errors"
	"fmt"
)

// ErrSnapshotNotFound is returned by Load when no snapshot has been saved under a name
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore persists serialized cache snapshots by name
type SnapshotStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, payload []byte) error
	Close() error
}

// Config selects and configures a snapshot backend
type Config struct {
	Driver string // "sqlite", "valkey" or "postgres"

	SQLitePath string

	ValkeyAddress  string
	ValkeyUsername string
	ValkeyPassword string
	ValkeyDB       int
	ValkeyPrefix   string

	PostgresDSN string
}

// Open connects the configured backend
func Open(ctx context.Context, cfg Config) (SnapshotStore, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "valkey":
		return NewValkeyStore(ctx, cfg)
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown snapshot store driver %q", cfg.Driver)
	}
}
