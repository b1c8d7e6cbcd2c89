package scheduler

import (
	"context"
	"time"
)

// Config controls the timer set and its delivery pipeline.
type Config struct {
	// Workers is the number of delivery workers (default 2).
	Workers int
	// QueueSize buffers fired payloads awaiting delivery (default 256).
	QueueSize int
	// RatePerSec limits outbound deliveries (default 3, Telegram flood control).
	RatePerSec int
	// DeliverTimeout bounds a single delivery callback (default 10s).
	DeliverTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 10 * time.Second
	}
	return c
}

// Payload is captured at schedule time and handed to delivery when the
// timer fires. It deliberately carries no storage references: delivery
// must not do store I/O.
type Payload struct {
	Owner int64
	Text  string
}

// DeliverFunc sends one fired reminder to its owner.
// Errors are logged and the reminder is consumed regardless: a fire is an
// at-most-once delivery attempt.
type DeliverFunc func(ctx context.Context, owner int64, text string) error

// Event types published on the bus.
const (
	EventFired         = "reminder.fired"
	EventDelivered     = "reminder.delivered"
	EventDeliverFailed = "reminder.deliver_failed"
)

// FireEvent is the bus payload for reminder lifecycle events.
type FireEvent struct {
	TaskID int64     `json:"task_id"`
	Owner  int64     `json:"owner"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
