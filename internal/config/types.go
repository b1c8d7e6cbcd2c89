package config

import (
	"errors"
	"strings"
)

// Config is the full remindbot configuration file.
//
// The file may be JSON or YAML; YAML is coerced to JSON and both go
// through a strict decoder (unknown keys are rejected so typos are caught
// at load time). All durations are Go duration strings (e.g. "500ms",
// "10s", "5m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Resync    ResyncConfig    `json:"resync"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the task store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the reminder timer set and its delivery pool.
type SchedulerConfig struct {
	Workers    int `json:"workers,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// DeliverTimeout bounds one delivery attempt. Go duration string.
	DeliverTimeout string `json:"deliver_timeout,omitempty"`
}

// ResyncConfig controls the periodic sweep that re-arms stored tasks whose
// timer was lost (e.g. the store insert succeeded but arming failed).
//
// Schedule accepts the cron forms robfig/cron understands, including
// descriptors like "@every 5m".
type ResyncConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"` // default true
	Schedule string `json:"schedule,omitempty"`
}

const defaultResyncSchedule = "@every 5m"

func (r ResyncConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

func (r ResyncConfig) EffectiveSchedule() string {
	if s := strings.TrimSpace(r.Schedule); s != "" {
		return s
	}
	return defaultResyncSchedule
}

// Validate checks the invariants a running bot cannot do without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.EqualFold(strings.TrimSpace(c.Storage.Driver), "sqlite") ||
		strings.TrimSpace(c.Storage.Driver) == "" {
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.deliver_timeout", c.Scheduler.DeliverTimeout); err != nil {
		return err
	}
	return nil
}
