package bot

import (
	"sync"
	"time"
)

type dialogState int

const (
	stateAwaitID dialogState = iota + 1
	stateAwaitText
	stateAwaitDue
)

type dialogKey struct {
	ChatID int64
	UserID int64
}

type dialog struct {
	state   dialogState
	taskID  int64
	newText string
	touched time.Time
}

// dialogStore tracks per-user edit conversations.
// Entries expire after ttl of inactivity so an abandoned dialog does not
// swallow unrelated text messages forever.
type dialogStore struct {
	mu  sync.Mutex
	m   map[dialogKey]*dialog
	ttl time.Duration
}

func newDialogStore(ttl time.Duration) *dialogStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &dialogStore{m: map[dialogKey]*dialog{}, ttl: ttl}
}

func (s *dialogStore) begin(key dialogKey, st dialogState, taskID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = &dialog{state: st, taskID: taskID, touched: time.Now()}
}

// get returns the active dialog for key, dropping it when expired.
func (s *dialogStore) get(key dialogKey) (*dialog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.m[key]
	if !ok {
		return nil, false
	}
	if time.Since(d.touched) > s.ttl {
		delete(s.m, key)
		return nil, false
	}
	return d, true
}

func (s *dialogStore) advance(key dialogKey, mut func(*dialog)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.m[key]
	if !ok {
		return false
	}
	mut(d)
	d.touched = time.Now()
	return true
}

func (s *dialogStore) end(key dialogKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return false
	}
	delete(s.m, key)
	return true
}
