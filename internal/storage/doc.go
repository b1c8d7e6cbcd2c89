package storage

// Package storage persists reminder tasks.
//
// Tasks are the durable source of truth: in-memory timers are rebuilt from
// this store after a restart. Two drivers exist:
//   - "sqlite": embedded database file (default)
//   - "memory": process-local map, used by tests
