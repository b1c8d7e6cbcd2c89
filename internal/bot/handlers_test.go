package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	"remindbot/internal/tasks"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// fakeAdapter records outbound messages so tests can assert on replies.
type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	edits []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return nil
}

func (f *fakeAdapter) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeAdapter) editTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.edits...)
}

func (f *fakeAdapter) lastSent(t *testing.T) string {
	t.Helper()
	s := f.sentTexts()
	if len(s) == 0 {
		t.Fatal("no messages sent")
	}
	return s[len(s)-1]
}

type botFixture struct {
	ad    *fakeAdapter
	h     *Handlers
	coord *tasks.Coordinator
	store *storage.Memory
	sched *scheduler.Service
	stop  func()
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	ad := &fakeAdapter{}
	store := storage.NewMemory()
	bus := eventbus.New()
	sched := scheduler.New(scheduler.Config{RatePerSec: 1000}, Deliver(ad), bus, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	coord := tasks.New(store, sched, logx.Nop())
	h := NewHandlers(coord, ad, logx.Nop())
	f := &botFixture{ad: ad, h: h, coord: coord, store: store, sched: sched}
	f.stop = func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		sched.Stop(sctx)
		scancel()
		cancel()
	}
	t.Cleanup(f.stop)
	return f
}

func msgReq(ad *fakeAdapter, chatID, fromID int64, text string) *Request {
	fields := strings.Fields(text)
	var args []string
	cmd := ""
	if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
		cmd = strings.TrimPrefix(fields[0], "/")
		args = fields[1:]
	}
	return &Request{
		Update: kit.Update{
			Kind:    kit.UpdateMessage,
			Message: &kit.Message{ChatID: chatID, FromID: fromID, Text: text},
		},
		Chat:    kit.ChatTarget{ChatID: chatID},
		FromID:  fromID,
		Command: cmd,
		Args:    args,
		Adapter: ad,
		Logger:  logx.Nop(),
	}
}

func cbReq(ad *fakeAdapter, chatID, fromID int64, messageID int, payload string) *Request {
	return &Request{
		Update: kit.Update{
			Kind:     kit.UpdateCallback,
			Callback: &kit.Callback{ChatID: chatID, FromID: fromID, MessageID: messageID},
		},
		Chat:    kit.ChatTarget{ChatID: chatID},
		FromID:  fromID,
		Payload: payload,
		Adapter: ad,
		Logger:  logx.Nop(),
	}
}

func TestAddAndListTasks(t *testing.T) {
	t.Parallel()
	f := newBotFixture(t)
	ctx := context.Background()

	req := msgReq(f.ad, 7, 7, "/add через 30 минут Проверить почту")
	if err := f.h.cmdAdd(ctx, req); err != nil {
		t.Fatal(err)
	}
	if got := f.ad.lastSent(t); !strings.HasPrefix(got, "Задача добавлена: Проверить почту на ") {
		t.Fatalf("unexpected reply: %q", got)
	}

	if err := f.h.cmdTasks(ctx, msgReq(f.ad, 7, 7, "/tasks")); err != nil {
		t.Fatal(err)
	}
	got := f.ad.lastSent(t)
	if !strings.Contains(got, "Текст: Проверить почту") {
		t.Fatalf("task list missing task: %q", got)
	}
}

func TestAddValidationReplies(t *testing.T) {
	t.Parallel()
	f := newBotFixture(t)
	ctx := context.Background()

	cases := []struct {
		text string
		want string
	}{
		{"/add", textAddNoArgs},
		{"/add через 30 парсеков Лететь", textAddBadUnit},
		{"/add 2024-13-40 99:99 Опоздать", textAddBadDate},
	}
	for _, c := range cases {
		if err := f.h.cmdAdd(ctx, msgReq(f.ad, 7, 7, c.text)); err != nil {
			t.Fatal(err)
		}
		if got := f.ad.lastSent(t); got != c.want {
			t.Fatalf("%q: got %q, want %q", c.text, got, c.want)
		}
	}
	list, err := f.coord.List(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("invalid input created %d tasks", len(list))
	}
}

func TestListEmpty(t *testing.T) {
	t.Parallel()
	f := newBotFixture(t)

	if err := f.h.cmdTasks(context.Background(), msgReq(f.ad, 7, 7, "/tasks")); err != nil {
		t.Fatal(err)
	}
	if got := f.ad.lastSent(t); got != textNoTasks {
		t.Fatalf("got %q", got)
	}
}

func TestDeleteCommand(t *testing.T) {
	t.Parallel()
	f := newBotFixture(t)
	ctx := context.Background()

	task, err := f.coord.Create(ctx, 7, strings.Fields("через 1 час Позвонить маме"))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.h.cmdDelete(ctx, msgReq(f.ad, 7, 7, "/delete abc")); err != nil {
		t.Fatal(err)
	}
	if got := f.ad.lastSent(t); got != textIDNotNumber {
		t.Fatalf("got %q", got)
	}

	if err := f.h.cmdDelete(ctx, msgReq(f.ad, 7, 7, "/delete 9999")); err != nil {
		t.Fatal(err)
	}
	if got := f.ad.lastSent(t); got != "Задача с ID 9999 не найдена." {
		t.Fatalf("got %q", got)
	}

	if err := f.h.cmdDelete(ctx, msgReq(f.ad, 7, 7, fmt.Sprintf("/delete %d", task.ID))); err != nil {
		t.Fatal(err)
	}
	if got := f.ad.lastSent(t); got != fmt.Sprintf("Задача %d удалена.", task.ID) {
		t.Fatalf("got %q", got)
	}
	if f.sched.Armed(task.ID) {
		t.Fatal("timer still armed after delete")
	}
}

func TestEditDialogFlow(t *testing.T) {
	t.Parallel()
	f := newBotFixture(t)
	ctx := context.Background()

	task, err := f.coord.Create(ctx, 7, strings.Fields("через 2 часа Старый текст"))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.h.cmdEdit(ctx, msgReq(f.ad, 7, 7, "/edit")); err != nil {
		t.Fatal(err)
	}
	if got := f.ad.lastSent(t); got != textEnterID {
		t.Fatalf("got %q", got)
	}

	// Non-numeric id keeps the dialog waiting.
	if !f.h.onText(ctx, msgReq(f.ad, 7, 7, "abc")) {
		t.Fatal("dialog did not consume input")
	}
	if got := f.ad.lastSent(t); got != textEnterIDAgain {
		t.Fatalf("got %q", got)
	}

	if !f.h.onText(ctx, msgReq(f.ad, 7, 7, fmt.Sprintf("%d", task.ID))) {
		t.Fatal("dialog did not consume id")
	}
	if got := f.ad.lastSent(t); got != textEnterText {
		t.Fatalf("got %q", got)
	}

	if !f.h.onText(ctx, msgReq(f.ad, 7, 7, "Новый текст")) {
		t.Fatal("dialog did not consume text")
	}
	if got := f.ad.lastSent(t); got != textEnterDue {
		t.Fatalf("got %q", got)
	}

	// Malformed date keeps the dialog at the same step.
	if !f.h.onText(ctx, msgReq(f.ad, 7, 7, "завтра")) {
		t.Fatal("dialog did not consume bad date")
	}
	if got := f.ad.lastSent(t); got != textEnterDueBad {
		t.Fatalf("got %q", got)
	}

	due := time.Now().Add(3 * time.Hour).Format("2006-01-02 15:04")
	if !f.h.onText(ctx, msgReq(f.ad, 7, 7, due)) {
		t.Fatal("dialog did not consume date")
	}
	if got := f.ad.lastSent(t); got != fmt.Sprintf("Задача %d обновлена.", task.ID) {
		t.Fatalf("got %q", got)
	}

	list, err := f.coord.List(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Text != "Новый текст" {
		t.Fatalf("task not updated: %+v", list)
	}

	// Dialog is over: plain text is no longer consumed.
	if f.h.onText(ctx, msgReq(f.ad, 7, 7, "просто сообщение")) {
		t.Fatal("ended dialog consumed input")
	}
}

func TestCancelEndsDialog(t *testing.T) {
	t.Parallel()
	f := newBotFixture(t)
	ctx := context.Background()

	if err := f.h.cmdEdit(ctx, msgReq(f.ad, 7, 7, "/edit")); err != nil {
		t.Fatal(err)
	}
	if err := f.h.cmdCancel(ctx, msgReq(f.ad, 7, 7, "/cancel")); err != nil {
		t.Fatal(err)
	}
	if got := f.ad.lastSent(t); got != textEditCanceled {
		t.Fatalf("got %q", got)
	}
	if f.h.onText(ctx, msgReq(f.ad, 7, 7, "123")) {
		t.Fatal("canceled dialog consumed input")
	}
}

func TestTaskDeleteCallbackConfirm(t *testing.T) {
	t.Parallel()
	f := newBotFixture(t)
	ctx := context.Background()

	task, err := f.coord.Create(ctx, 7, strings.Fields("через 1 час Купить продукты"))
	if err != nil {
		t.Fatal(err)
	}
	payload := fmt.Sprintf("%d", task.ID)

	if err := f.h.cbTaskDelete(ctx, cbReq(f.ad, 7, 7, 1, payload), payload); err != nil {
		t.Fatal(err)
	}
	edits := f.ad.editTexts()
	if len(edits) == 0 || !strings.HasPrefix(edits[len(edits)-1], "Удалить задачу") {
		t.Fatalf("no confirm prompt: %v", edits)
	}

	if err := f.h.cbTaskDeleteYes(ctx, cbReq(f.ad, 7, 7, 1, payload), payload); err != nil {
		t.Fatal(err)
	}
	edits = f.ad.editTexts()
	if got := edits[len(edits)-1]; got != fmt.Sprintf("Задача %d удалена.", task.ID) {
		t.Fatalf("got %q", got)
	}

	list, err := f.coord.List(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatal("task still present after confirmed delete")
	}
}

func TestTaskEditCallbackRejectsForeignTask(t *testing.T) {
	t.Parallel()
	f := newBotFixture(t)
	ctx := context.Background()

	task, err := f.coord.Create(ctx, 7, strings.Fields("через 1 час Чужая задача"))
	if err != nil {
		t.Fatal(err)
	}
	payload := fmt.Sprintf("%d", task.ID)

	// User 8 taps an edit button for user 7's task.
	if err := f.h.cbTaskEdit(ctx, cbReq(f.ad, 8, 8, 1, payload), payload); err != nil {
		t.Fatal(err)
	}
	if f.h.onText(ctx, msgReq(f.ad, 8, 8, "взлом")) {
		t.Fatal("dialog opened for foreign task")
	}
}
