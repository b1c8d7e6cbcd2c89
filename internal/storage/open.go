package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Store is the persistence API used by the task coordinator.
//
// ListAll exists for the restart-recovery sweep only; everything user-facing
// is owner-scoped.
type Store interface {
	Insert(ctx context.Context, owner int64, text string, due time.Time) (int64, error)
	ListByOwner(ctx context.Context, owner int64) ([]Task, error)
	Update(ctx context.Context, id int64, text string, due time.Time) error
	Delete(ctx context.Context, id int64) error
	ListAll(ctx context.Context) ([]Task, error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
