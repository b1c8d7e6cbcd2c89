package tasks

import (
	"context"
	"fmt"

	"remindbot/internal/scheduler"
	logx "remindbot/pkg/logx"
)

// Recover re-arms timers for every stored task after a process start.
// Tasks whose due instant has already passed are armed too: the scheduler
// fires them on the next tick, a late reminder being better than a lost
// one.
func (c *Coordinator) Recover(ctx context.Context) error {
	all, err := c.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}

	armed, late := 0, 0
	for _, t := range all {
		if err := c.sched.Schedule(t.ID, t.Due, scheduler.Payload{Owner: t.Owner, Text: t.Text}); err != nil {
			return fmt.Errorf("recovery arm task %d: %w", t.ID, err)
		}
		armed++
		if t.Due.Before(c.now()) {
			late++
		}
	}

	c.log.Info("recovery sweep done", logx.Int("armed", armed), logx.Int("late", late))
	return nil
}

// Resync arms timers for stored tasks that should be armed but are not,
// healing the non-atomic insert-then-arm window and any timer lost at
// runtime. It is run periodically by the app.
//
// Only tasks still due in the future are touched: a past-due task without
// a timer is indistinguishable from one that already fired (rows persist
// after firing), and re-arming those would deliver duplicates on every
// pass. Missed past-due tasks are picked up by Recover on the next start.
func (c *Coordinator) Resync(ctx context.Context) (int, error) {
	all, err := c.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("resync sweep: %w", err)
	}

	now := c.now()
	rearmed := 0
	for _, t := range all {
		if !t.Due.After(now) || c.sched.Armed(t.ID) {
			continue
		}
		if err := c.sched.Schedule(t.ID, t.Due, scheduler.Payload{Owner: t.Owner, Text: t.Text}); err != nil {
			return rearmed, fmt.Errorf("resync arm task %d: %w", t.ID, err)
		}
		c.log.Warn("resync re-armed lost timer",
			logx.Int64("task_id", t.ID),
			logx.Time("due", t.Due),
			logx.Duration("until_due", t.Due.Sub(now)))
		rearmed++
	}
	return rearmed, nil
}
