package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	tgui "remindbot/pkg/tgui"
)

type Command struct {
	Route       string
	Description string
	Usage       string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

type CallbackRoute struct {
	Scope   string
	Action  string
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

// TextFunc handles plain (non-command) text messages.
// It returns true when the message was consumed.
type TextFunc func(ctx context.Context, req *Request) bool

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	Payload string // callback payload (raw string)
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Router dispatches incoming transport updates to registered command and
// callback handlers through a bounded worker pool.
type Router struct {
	mu        sync.RWMutex
	commands  map[string]Command
	callbacks map[string]map[string]CallbackRoute // scope -> action -> route
	onText    TextFunc

	log     logx.Logger
	adapter kit.Adapter

	jobs chan func()
}

func NewRouter(log logx.Logger, adapter kit.Adapter) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		commands:  map[string]Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		log:       log,
		adapter:   adapter,
		jobs:      make(chan func(), 256),
	}
}

func (r *Router) Register(cmds []Command, cbs []CallbackRoute) {
	commands := map[string]Command{}
	for _, c := range cmds {
		route := strings.TrimSpace(c.Route)
		if route == "" || c.Handle == nil {
			continue
		}
		commands[route] = c
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, route := range cbs {
		s := strings.TrimSpace(route.Scope)
		a := strings.TrimSpace(route.Action)
		if s == "" || a == "" || route.Handle == nil {
			continue
		}
		if cb[s] == nil {
			cb[s] = map[string]CallbackRoute{}
		}
		cb[s][a] = route
	}

	r.mu.Lock()
	r.commands = commands
	r.callbacks = cb
	r.mu.Unlock()

	// Best-effort Telegram /menu autocomplete update (non-blocking).
	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		menu := make([]kit.BotCommand, 0, len(cmds))
		for _, c := range cmds {
			menu = append(menu, kit.BotCommand{Command: c.Route, Description: c.Description})
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = up.UpdateMenuCommands(ctx, menu)
		}()
	}
}

// OnText sets the fallback for plain text messages (dialog input).
func (r *Router) OnText(fn TextFunc) {
	r.mu.Lock()
	r.onText = fn
	r.mu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done or the channel closes.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	r.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		idx := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-r.jobs:
					if !ok {
						return
					}
					if job == nil {
						continue
					}
					// Keep workers alive if a job slips past the recover middleware.
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}()
	}

	defer func() {
		wg.Wait()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(root context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(root, up)
	case kit.UpdateCallback:
		r.routeCallback(root, up)
	}
}

func (r *Router) routeMessage(root context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if !strings.HasPrefix(text, "/") {
		r.mu.RLock()
		onText := r.onText
		r.mu.RUnlock()
		if onText == nil {
			return
		}
		req := r.newRequest(up, kit.ChatTarget{ChatID: msg.ChatID}, msg.FromID, "text", nil, "")
		final := func(ctx context.Context, rq *Request) error {
			onText(ctx, rq)
			return nil
		}
		r.enqueue(root, req, Chain(final, MWPanicRecover(r.log), MWTimeout(30*time.Second)))
		return
	}

	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]

	r.mu.RLock()
	cmd, ok := r.commands[word]
	r.mu.RUnlock()
	if !ok {
		_, _ = r.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID}, textUnknownCommand, nil)
		return
	}

	req := r.newRequest(up, kit.ChatTarget{ChatID: msg.ChatID}, msg.FromID, cmd.Route, args, "")
	final := Chain(
		cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(cmd.Timeout),
	)
	r.enqueue(root, req, final)
}

func (r *Router) routeCallback(root context.Context, up kit.Update) {
	if up.Callback == nil {
		return
	}
	cb := up.Callback
	scope, action, payload := tgui.ParseData(cb.Data)
	if scope == "" || action == "" {
		return
	}

	r.mu.RLock()
	route, ok := r.callbacks[scope][action]
	r.mu.RUnlock()
	if !ok {
		return
	}

	req := r.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID}, cb.FromID, "cb:"+scope+":"+action, nil, payload)
	h := func(ctx context.Context, rq *Request) error { return route.Handle(ctx, rq, payload) }
	final := Chain(
		h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(route.Timeout),
	)

	if !r.tryEnqueue(func() {
		_ = final(root, req)
		// best-effort to stop "loading" UI
		_ = r.adapter.AnswerCallback(root, cb.ID, "")
	}) {
		_ = r.adapter.AnswerCallback(root, cb.ID, "busy")
	}
}

func (r *Router) enqueue(root context.Context, req *Request, final HandlerFunc) {
	if !r.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = r.adapter.SendText(root, req.Chat, textBusy, nil)
	}
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string, args []string, payload string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		Args:    args,
		Payload: payload,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

var ridSeq uint64

func newReqID() string {
	n := atomic.AddUint64(&ridSeq, 1)
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(n, 36)
}
