package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/duespec"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type capture struct {
	mu    sync.Mutex
	calls []scheduler.Payload
}

func (c *capture) deliver(_ context.Context, owner int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, scheduler.Payload{Owner: owner, Text: text})
	return nil
}

func (c *capture) snapshot() []scheduler.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]scheduler.Payload(nil), c.calls...)
}

func (c *capture) waitFor(t *testing.T, n int, within time.Duration) []scheduler.Payload {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := c.snapshot()
	t.Fatalf("expected %d deliveries within %v, got %d: %+v", n, within, len(got), got)
	return nil
}

type fixture struct {
	store *storage.Memory
	sched *scheduler.Service
	coord *Coordinator
	sink  *capture
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sink := &capture{}
	st := storage.NewMemory()
	sched := scheduler.New(scheduler.Config{Workers: 2, RatePerSec: 1000, DeliverTimeout: time.Second}, sink.deliver, nil, logx.Nop())
	sched.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sched.Stop(ctx)
	})
	return &fixture{store: st, sched: sched, coord: New(st, sched, logx.Nop()), sink: sink}
}

func TestCreateRelativeEndToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// Pin the clock anchor so the resolved due instant is verifiable...
	anchor := time.Now()
	f.coord.now = func() time.Time { return anchor }

	task, err := f.coord.Create(ctx, 1, strings.Fields("через 30 минут Buy milk"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if want := anchor.Add(30 * time.Minute); !task.Due.Equal(want) {
		t.Fatalf("due = %v, want %v", task.Due, want)
	}
	if task.Text != "Buy milk" {
		t.Fatalf("text = %q", task.Text)
	}
	if !f.sched.Armed(task.ID) {
		t.Fatal("expected armed timer after create")
	}

	rows, err := f.store.ListByOwner(ctx, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("stored rows = %v (err %v)", rows, err)
	}

	// ...then collapse the remaining wait and let the timer fire for real.
	if err := f.coord.Edit(ctx, 1, task.ID, "Buy milk", time.Now().Add(20*time.Millisecond)); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	got := f.sink.waitFor(t, 1, time.Second)
	if got[0].Owner != 1 || got[0].Text != "Buy milk" {
		t.Fatalf("unexpected delivery: %+v", got[0])
	}
	time.Sleep(30 * time.Millisecond)
	if len(f.sink.snapshot()) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(f.sink.snapshot()))
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   string
		want error
	}{
		{name: "bad unit", in: "через 5 parsecs чай", want: duespec.ErrInvalidUnit},
		{name: "bad magnitude", in: "через -5 минут чай", want: duespec.ErrInvalidMagnitude},
		{name: "malformed", in: "когда-нибудь потом", want: duespec.ErrInvalidDueSpec},
		{name: "blank text", in: "2030-01-01 10:00  ", want: duespec.ErrInvalidDueSpec},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Create(ctx, 1, strings.Fields(tt.in))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Create(%q) error = %v, want %v", tt.in, err, tt.want)
			}
		})
	}

	// No mutation happened before any validation failure.
	rows, _ := f.store.ListAll(ctx)
	if len(rows) != 0 {
		t.Fatalf("validation errors must not write rows, found %d", len(rows))
	}
	if f.sched.Len() != 0 {
		t.Fatalf("validation errors must not arm timers, found %d", f.sched.Len())
	}
}

func TestCreateSchedulingFailedKeepsRow(t *testing.T) {
	t.Parallel()
	sink := &capture{}
	st := storage.NewMemory()
	// Scheduler intentionally not started: arming fails.
	sched := scheduler.New(scheduler.Config{}, sink.deliver, nil, logx.Nop())
	coord := New(st, sched, logx.Nop())

	task, err := coord.Create(context.Background(), 1, strings.Fields("через 1 час чай"))
	var sf *SchedulingFailedError
	if !errors.As(err, &sf) {
		t.Fatalf("err = %v, want SchedulingFailedError", err)
	}
	if sf.TaskID != task.ID || task.ID == 0 {
		t.Fatalf("error task id %d, task %d", sf.TaskID, task.ID)
	}

	rows, _ := st.ListAll(context.Background())
	if len(rows) != 1 {
		t.Fatalf("row should remain after scheduling failure, got %d rows", len(rows))
	}
}

func TestEditDoesNotFireOldText(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	oldDue := time.Now().Add(40 * time.Millisecond)
	id, err := f.store.Insert(ctx, 1, "old text", oldDue)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := f.sched.Schedule(id, oldDue, scheduler.Payload{Owner: 1, Text: "old text"}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	newDue := time.Now().Add(120 * time.Millisecond)
	if err := f.coord.Edit(ctx, 1, id, "new text", newDue); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	// Let the ORIGINAL due instant pass: nothing may fire yet.
	time.Sleep(70 * time.Millisecond)
	if got := f.sink.snapshot(); len(got) != 0 {
		t.Fatalf("old timer fired after edit: %+v", got)
	}

	got := f.sink.waitFor(t, 1, time.Second)
	if got[0].Text != "new text" {
		t.Fatalf("delivered %q, want new text", got[0].Text)
	}
}

func TestDeletePreventsFire(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	due := time.Now().Add(40 * time.Millisecond)
	id, err := f.store.Insert(ctx, 1, "doomed", due)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := f.sched.Schedule(id, due, scheduler.Payload{Owner: 1, Text: "doomed"}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := f.coord.Delete(ctx, 1, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	if got := f.sink.snapshot(); len(got) != 0 {
		t.Fatalf("deleted task fired: %+v", got)
	}
	if rows, _ := f.store.ListAll(ctx); len(rows) != 0 {
		t.Fatalf("row should be gone, got %+v", rows)
	}
}

func TestEditAndDeleteCrossOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.Insert(ctx, 1, "mine", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := f.coord.Edit(ctx, 2, id, "stolen", time.Now().Add(time.Hour)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cross-owner Edit error = %v, want ErrNotFound", err)
	}
	if err := f.coord.Delete(ctx, 2, id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cross-owner Delete error = %v, want ErrNotFound", err)
	}
	if err := f.coord.Delete(ctx, 1, 404); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing-id Delete error = %v, want ErrNotFound", err)
	}

	// Nothing was mutated.
	rows, _ := f.store.ListByOwner(ctx, 1)
	if len(rows) != 1 || rows[0].Text != "mine" {
		t.Fatalf("row mutated by rejected ops: %+v", rows)
	}
}

func TestEditEmptyTextRejectedBeforeMutation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	due := time.Now().Add(time.Hour)
	id, _ := f.store.Insert(ctx, 1, "keep me", due)
	if err := f.sched.Schedule(id, due, scheduler.Payload{Owner: 1, Text: "keep me"}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := f.coord.Edit(ctx, 1, id, "   ", due); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if !f.sched.Armed(id) {
		t.Fatal("rejected edit must not cancel the armed timer")
	}
	rows, _ := f.store.ListByOwner(ctx, 1)
	if rows[0].Text != "keep me" {
		t.Fatalf("rejected edit mutated the row: %+v", rows[0])
	}
}

func TestListEmptyOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	got, err := f.coord.List(context.Background(), 99)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}
}

func TestRecoverArmsPastAndFuture(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	pastID, _ := f.store.Insert(ctx, 1, "overdue", time.Now().Add(-time.Hour))
	futureID, _ := f.store.Insert(ctx, 1, "upcoming", time.Now().Add(60*time.Millisecond))

	if err := f.coord.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	// Past-due fires promptly; the future one at its due instant.
	got := f.sink.waitFor(t, 1, time.Second)
	if got[0].Text != "overdue" {
		t.Fatalf("first delivery = %+v, want the overdue task", got[0])
	}
	got = f.sink.waitFor(t, 2, time.Second)
	if got[1].Text != "upcoming" {
		t.Fatalf("second delivery = %+v, want the upcoming task", got[1])
	}
	_ = pastID
	_ = futureID
}

func TestResyncRearmsOnlyFutureUnarmed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// Future task with a lost timer (stored, never armed).
	lostID, _ := f.store.Insert(ctx, 1, "lost", time.Now().Add(time.Hour))
	// Future task properly armed.
	armedID, _ := f.store.Insert(ctx, 1, "armed", time.Now().Add(time.Hour))
	_ = f.sched.Schedule(armedID, time.Now().Add(time.Hour), scheduler.Payload{Owner: 1, Text: "armed"})
	// Past-due task without a timer: looks exactly like an already-fired
	// one, must be left alone.
	firedID, _ := f.store.Insert(ctx, 1, "already fired", time.Now().Add(-time.Hour))

	n, err := f.coord.Resync(ctx)
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if n != 1 {
		t.Fatalf("rearmed = %d, want 1", n)
	}
	if !f.sched.Armed(lostID) {
		t.Fatal("lost future timer should be re-armed")
	}
	if f.sched.Armed(firedID) {
		t.Fatal("past-due row must not be re-armed by resync")
	}

	// A second pass is a no-op.
	n, err = f.coord.Resync(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second Resync = (%d, %v), want (0, nil)", n, err)
	}
}
