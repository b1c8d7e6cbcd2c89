package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is a non-durable Store used in tests and for local experiments.
// Listing preserves insertion order, matching the sqlite driver's ORDER BY id.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	order  []int64
	tasks  map[int64]Task
}

func NewMemory() *Memory {
	return &Memory{tasks: map[int64]Task{}}
}

func (m *Memory) Insert(_ context.Context, owner int64, text string, due time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.tasks[id] = Task{ID: id, Owner: owner, Text: text, Due: due}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) ListByOwner(_ context.Context, owner int64) ([]Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Task{}
	for _, id := range m.order {
		if t, ok := m.tasks[id]; ok && t.Owner == owner {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) ListAll(_ context.Context) ([]Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Task{}
	for _, id := range m.order {
		if t, ok := m.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) Update(_ context.Context, id int64, text string, due time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Text = text
	t.Due = due
	m.tasks[id] = t
	return nil
}

func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
