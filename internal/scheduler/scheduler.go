package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// ErrNotRunning is returned by Schedule when the service is stopped.
var ErrNotRunning = errors.New("scheduler not running")

type entry struct {
	timer *time.Timer
	at    time.Time
	p     Payload
	// ver is a process-unique arm sequence number. A timer callback whose
	// version no longer matches the armed entry belongs to a replaced or
	// canceled arm and must be ignored.
	ver uint64
}

type fired struct {
	id int64
	p  Payload
}

// Service is the timer set. One instance per process, injected into the
// coordinator; initialized empty, repopulated by the recovery sweep.
type Service struct {
	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	deliver DeliverFunc

	mu      sync.Mutex
	running bool
	seq     uint64
	entries map[int64]*entry

	runCtx  context.Context
	cancel  context.CancelFunc
	queue   chan fired
	wg      sync.WaitGroup
	limiter *rate.Limiter
}

func New(cfg Config, deliver DeliverFunc, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		log:     log,
		bus:     bus,
		deliver: deliver,
		entries: map[int64]*entry{},
	}
}

// Start launches the delivery workers. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.queue = make(chan fired, s.cfg.QueueSize)
	s.limiter = rate.NewLimiter(rate.Limit(s.cfg.RatePerSec), s.cfg.RatePerSec)

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(s.runCtx)
	}
	s.log.Info("scheduler started", logx.Int("workers", s.cfg.Workers))
}

// Stop drops all armed timers and stops the workers. Queued fires are
// discarded: there is no graceful fire-on-shutdown, the store rows remain
// and the recovery sweep re-arms them on the next start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for id, e := range s.entries {
		_ = e.timer.Stop()
		delete(s.entries, id)
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Schedule arms (or re-arms) the timer for a task. An existing timer for
// the same id is replaced, never double-armed. A fire instant in the past
// fires on the next tick instead of being dropped.
func (s *Service) Schedule(id int64, at time.Time, p Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}

	if prev, ok := s.entries[id]; ok {
		_ = prev.timer.Stop()
		delete(s.entries, id)
	}

	s.seq++
	ver := s.seq
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	e := &entry{at: at, p: p, ver: ver}
	e.timer = time.AfterFunc(delay, func() { s.fire(id, ver) })
	s.entries[id] = e

	s.log.Debug("timer armed",
		logx.Int64("task_id", id),
		logx.Time("at", at),
		logx.Duration("in", delay))
	return nil
}

// Cancel disarms the timer for a task. Calling it for an absent id is a
// no-op: an already-fired and a never-armed timer are indistinguishable
// and both benign.
func (s *Service) Cancel(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	_ = e.timer.Stop()
	delete(s.entries, id)
	s.log.Debug("timer canceled", logx.Int64("task_id", id))
	return true
}

// Armed reports whether a timer is currently armed for the task.
func (s *Service) Armed(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of armed timers.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// fire consumes the armed entry and hands the payload to delivery.
// Removal happens under the lock so the timer is never observable as both
// fired and armed; store I/O never happens here.
func (s *Service) fire(id int64, ver uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.ver != ver {
		// Replaced or canceled while this callback was in flight.
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	if !s.running {
		s.mu.Unlock()
		return
	}

	f := fired{id: id, p: e.p}
	handoff := false
	select {
	case s.queue <- f:
	default:
		// Queue full: deliver out-of-band rather than lose the fire.
		// wg.Add happens under the lock, before a concurrent Stop can
		// start waiting.
		handoff = true
		s.wg.Add(1)
	}
	ctx := s.runCtx
	s.mu.Unlock()

	s.publish(EventFired, FireEvent{TaskID: id, Owner: f.p.Owner, At: time.Now()})
	if handoff {
		s.log.Warn("delivery queue full, delivering out of band", logx.Int64("task_id", id))
		go func() {
			defer s.wg.Done()
			s.process(ctx, f)
		}()
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.queue:
			s.process(ctx, f)
		}
	}
}

func (s *Service) process(ctx context.Context, f fired) {
	if s.deliver == nil {
		return
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliverTimeout)
	err := s.deliver(callCtx, f.p.Owner, f.p.Text)
	cancel()
	if err != nil {
		// Delivery failures are terminal for this reminder: logged, no
		// retry, no re-arm.
		s.log.Error("reminder delivery failed",
			logx.Int64("task_id", f.id),
			logx.Int64("owner", f.p.Owner),
			logx.Err(err))
		s.publish(EventDeliverFailed, FireEvent{TaskID: f.id, Owner: f.p.Owner, At: time.Now(), Error: err.Error()})
		return
	}
	s.log.Info("reminder delivered", logx.Int64("task_id", f.id), logx.Int64("owner", f.p.Owner))
	s.publish(EventDelivered, FireEvent{TaskID: f.id, Owner: f.p.Owner, At: time.Now()})
}

func (s *Service) publish(typ string, ev FireEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}
