// Package tasks coordinates the task store and the reminder scheduler so
// the two stay consistent: a stored task has at most one armed timer, and
// every armed timer belongs to a stored task.
package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/duespec"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type Coordinator struct {
	store storage.Store
	sched *scheduler.Service
	log   logx.Logger

	// now is the clock anchor for relative due specs; overridden in tests.
	now func() time.Time
}

func New(store storage.Store, sched *scheduler.Service, log logx.Logger) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{store: store, sched: sched, log: log, now: time.Now}
}

// Create validates a due spec ("YYYY-MM-DD HH:MM text" or "через N <unit>
// text"), inserts the task and arms its timer.
//
// The insert and the arm are not atomic: when arming fails the row remains
// unscheduled and a *SchedulingFailedError carrying the task id is
// returned, so the caller can retry or delete. Validation failures happen
// before any write.
func (c *Coordinator) Create(ctx context.Context, owner int64, fields []string) (storage.Task, error) {
	due, text, err := duespec.Parse(c.now(), fields)
	if err != nil {
		return storage.Task{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return storage.Task{}, ErrEmptyText
	}

	id, err := c.store.Insert(ctx, owner, text, due)
	if err != nil {
		return storage.Task{}, fmt.Errorf("store insert: %w", err)
	}
	task := storage.Task{ID: id, Owner: owner, Text: text, Due: due}

	if err := c.sched.Schedule(id, due, scheduler.Payload{Owner: owner, Text: text}); err != nil {
		c.log.Error("task stored but timer not armed", logx.Int64("task_id", id), logx.Err(err))
		return task, &SchedulingFailedError{TaskID: id, Err: err}
	}

	c.log.Info("task created",
		logx.Int64("task_id", id),
		logx.Int64("owner", owner),
		logx.Time("due", due))
	return task, nil
}

// List returns the owner's tasks in insertion order. No tasks is an empty
// slice, never an error.
func (c *Coordinator) List(ctx context.Context, owner int64) ([]storage.Task, error) {
	return c.store.ListByOwner(ctx, owner)
}

// Edit replaces a task's text and due instant and re-arms its timer.
// Sequencing is cancel, then update, then re-arm, so a stale timer can
// never fire the old text after the row has changed. A task that does not
// exist or belongs to someone else is storage.ErrNotFound either way.
func (c *Coordinator) Edit(ctx context.Context, owner, id int64, newText string, newDue time.Time) error {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return ErrEmptyText
	}
	if err := c.checkOwned(ctx, owner, id); err != nil {
		return err
	}

	if !c.sched.Cancel(id) {
		// Fired already or was never armed; both fine.
		c.log.Debug("edit found no armed timer", logx.Int64("task_id", id))
	}
	if err := c.store.Update(ctx, id, newText, newDue); err != nil {
		return fmt.Errorf("store update: %w", err)
	}
	if err := c.sched.Schedule(id, newDue, scheduler.Payload{Owner: owner, Text: newText}); err != nil {
		c.log.Error("task updated but timer not armed", logx.Int64("task_id", id), logx.Err(err))
		return &SchedulingFailedError{TaskID: id, Err: err}
	}

	c.log.Info("task updated", logx.Int64("task_id", id), logx.Time("due", newDue))
	return nil
}

// Delete removes the task row and disarms its timer. Cancel-on-absent is a
// no-op.
func (c *Coordinator) Delete(ctx context.Context, owner, id int64) error {
	if err := c.checkOwned(ctx, owner, id); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("store delete: %w", err)
	}
	c.sched.Cancel(id)
	c.log.Info("task deleted", logx.Int64("task_id", id), logx.Int64("owner", owner))
	return nil
}

// checkOwned verifies the task exists and belongs to owner. Cross-owner
// access reports storage.ErrNotFound, indistinguishable from nonexistence,
// so task ids don't leak across owners.
func (c *Coordinator) checkOwned(ctx context.Context, owner, id int64) error {
	list, err := c.store.ListByOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("store list: %w", err)
	}
	for _, t := range list {
		if t.ID == id {
			return nil
		}
	}
	return storage.ErrNotFound
}
