package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when the referenced task row does not exist.
var ErrNotFound = errors.New("task not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default when empty)
//   - "memory": in-process map, not durable (tests)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Task is one persisted reminder row.
// Keep it compact and schema-stable.
type Task struct {
	ID    int64
	Owner int64
	Text  string
	Due   time.Time
}
