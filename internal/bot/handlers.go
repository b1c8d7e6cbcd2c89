package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"remindbot/internal/duespec"
	"remindbot/internal/storage"
	"remindbot/internal/tasks"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	tgui "remindbot/pkg/tgui"
)

// Handlers binds the task coordinator to Telegram commands and callbacks.
type Handlers struct {
	coord   *tasks.Coordinator
	adapter kit.Adapter
	log     logx.Logger
	dialogs *dialogStore
}

func NewHandlers(coord *tasks.Coordinator, adapter kit.Adapter, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{
		coord:   coord,
		adapter: adapter,
		log:     log,
		dialogs: newDialogStore(10 * time.Minute),
	}
}

// Register installs all commands and callbacks on the router.
func (h *Handlers) Register(r *Router) {
	cmds := []Command{
		{Route: "start", Description: "запуск бота и меню", Handle: h.cmdStart},
		{Route: "help", Description: "помощь", Handle: h.cmdHelp},
		{Route: "add", Description: "добавить задачу", Usage: "/add через 30 минут Проверить почту", Handle: h.cmdAdd},
		{Route: "tasks", Description: "показать все задачи", Handle: h.cmdTasks},
		{Route: "edit", Description: "редактировать задачу", Handle: h.cmdEdit},
		{Route: "delete", Description: "удалить задачу", Usage: "/delete <ID>", Handle: h.cmdDelete},
		{Route: "cancel", Description: "отменить редактирование", Handle: h.cmdCancel},
	}
	cbs := []CallbackRoute{
		{Scope: "menu", Action: "add", Handle: h.cbMenuAdd},
		{Scope: "menu", Action: "view", Handle: h.cbMenuView},
		{Scope: "menu", Action: "edit", Handle: h.cbMenuEdit},
		{Scope: "menu", Action: "del", Handle: h.cbMenuDelete},
		{Scope: "menu", Action: "help", Handle: h.cbMenuHelp},
		{Scope: "task", Action: "edit", Handle: h.cbTaskEdit},
		{Scope: "task", Action: "del", Handle: h.cbTaskDelete},
		{Scope: "task", Action: "del_yes", Handle: h.cbTaskDeleteYes},
		{Scope: "task", Action: "del_no", Handle: h.cbTaskDeleteNo},
	}
	r.Register(cmds, cbs)
	r.OnText(h.onText)
}

func mainMenu() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn(btnAdd, tgui.Data("menu", "add", ""))).
		Row(tgui.Btn(btnView, tgui.Data("menu", "view", ""))).
		Row(tgui.Btn(btnEdit, tgui.Data("menu", "edit", ""))).
		Row(tgui.Btn(btnDelete, tgui.Data("menu", "del", ""))).
		Row(tgui.Btn(btnHelp, tgui.Data("menu", "help", "")))
}

func (h *Handlers) reply(ctx context.Context, req *Request, text string) {
	if _, err := req.Adapter.SendText(ctx, req.Chat, text, nil); err != nil {
		req.Logger.Warn("send failed", logx.Err(err))
	}
}

func (h *Handlers) edit(ctx context.Context, req *Request, text string) {
	if req.Update.Callback == nil {
		h.reply(ctx, req, text)
		return
	}
	ref := kit.MessageRef{ChatID: req.Chat.ChatID, MessageID: req.Update.Callback.MessageID}
	if err := req.Adapter.EditText(ctx, ref, text, nil); err != nil {
		req.Logger.Warn("edit failed", logx.Err(err))
	}
}

func (h *Handlers) cmdStart(ctx context.Context, req *Request) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, textGreeting, &kit.SendOptions{ReplyMarkupAdapter: mainMenu().Markup()})
	return err
}

func (h *Handlers) cmdHelp(ctx context.Context, req *Request) error {
	h.reply(ctx, req, textHelp)
	return nil
}

func (h *Handlers) cmdAdd(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		h.reply(ctx, req, textAddNoArgs)
		return nil
	}

	task, err := h.coord.Create(ctx, req.FromID, req.Args)
	if err != nil {
		var sf *tasks.SchedulingFailedError
		switch {
		case errors.As(err, &sf):
			// Row is stored; the timer will be armed by the periodic resync.
			req.Logger.Warn("task stored but not armed", logx.Int64("task_id", sf.TaskID), logx.Err(sf.Err))
			h.reply(ctx, req, addedText(task))
			return nil
		case errors.Is(err, duespec.ErrInvalidUnit):
			h.reply(ctx, req, textAddBadUnit)
		case errors.Is(err, duespec.ErrInvalidMagnitude):
			h.reply(ctx, req, textAddTooShort)
		case errors.Is(err, duespec.ErrInvalidDueSpec):
			h.reply(ctx, req, textAddBadDate)
		case errors.Is(err, tasks.ErrEmptyText):
			h.reply(ctx, req, textAddTooShort)
		default:
			req.Logger.Error("create failed", logx.Err(err))
			h.reply(ctx, req, textAddFailed)
		}
		return nil
	}

	h.reply(ctx, req, addedText(task))
	return nil
}

func addedText(t storage.Task) string {
	return fmt.Sprintf("Задача добавлена: %s на %s", t.Text, duespec.FormatDue(t.Due))
}

func (h *Handlers) cmdTasks(ctx context.Context, req *Request) error {
	return h.sendTaskList(ctx, req)
}

func (h *Handlers) sendTaskList(ctx context.Context, req *Request) error {
	list, err := h.coord.List(ctx, req.FromID)
	if err != nil {
		req.Logger.Error("list failed", logx.Err(err))
		h.reply(ctx, req, textAddFailed)
		return nil
	}
	if len(list) == 0 {
		h.reply(ctx, req, textNoTasks)
		return nil
	}

	// One message per task, each with its own action buttons.
	for _, t := range list {
		id := strconv.FormatInt(t.ID, 10)
		kb := tgui.NewInline().Row(
			tgui.Btn("Редактировать", tgui.Data("task", "edit", id)),
			tgui.Btn("Удалить", tgui.Data("task", "del", id)),
		)
		text := fmt.Sprintf("ID: %d\nТекст: %s\nДо: %s", t.ID, t.Text, duespec.FormatDue(t.Due))
		if _, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ReplyMarkupAdapter: kb.Markup()}); err != nil {
			req.Logger.Warn("send failed", logx.Err(err))
			return nil
		}
	}
	return nil
}

func (h *Handlers) cmdEdit(ctx context.Context, req *Request) error {
	h.dialogs.begin(dialogKey{ChatID: req.Chat.ChatID, UserID: req.FromID}, stateAwaitID, 0)
	h.reply(ctx, req, textEnterID)
	return nil
}

func (h *Handlers) cmdDelete(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		h.reply(ctx, req, textDeleteNoArgs)
		return nil
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		h.reply(ctx, req, textIDNotNumber)
		return nil
	}
	if err := h.coord.Delete(ctx, req.FromID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.reply(ctx, req, fmt.Sprintf("Задача с ID %d не найдена.", id))
			return nil
		}
		req.Logger.Error("delete failed", logx.Err(err))
		h.reply(ctx, req, "Ошибка при удалении задачи. Попробуйте снова.")
		return nil
	}
	h.reply(ctx, req, fmt.Sprintf("Задача %d удалена.", id))
	return nil
}

func (h *Handlers) cmdCancel(ctx context.Context, req *Request) error {
	h.dialogs.end(dialogKey{ChatID: req.Chat.ChatID, UserID: req.FromID})
	_, err := req.Adapter.SendText(ctx, req.Chat, textEditCanceled, &kit.SendOptions{ReplyMarkupAdapter: mainMenu().Markup()})
	return err
}

// ---- main menu callbacks ----

func (h *Handlers) cbMenuAdd(ctx context.Context, req *Request, _ string) error {
	h.edit(ctx, req, textAddUsage)
	return nil
}

func (h *Handlers) cbMenuView(ctx context.Context, req *Request, _ string) error {
	return h.sendTaskList(ctx, req)
}

func (h *Handlers) cbMenuEdit(ctx context.Context, req *Request, _ string) error {
	h.dialogs.begin(dialogKey{ChatID: req.Chat.ChatID, UserID: req.FromID}, stateAwaitID, 0)
	h.edit(ctx, req, textEnterID)
	return nil
}

func (h *Handlers) cbMenuDelete(ctx context.Context, req *Request, _ string) error {
	h.edit(ctx, req, textDeletePrompt)
	return nil
}

func (h *Handlers) cbMenuHelp(ctx context.Context, req *Request, _ string) error {
	h.reply(ctx, req, textHelp)
	return nil
}

// ---- per-task callbacks ----

func (h *Handlers) cbTaskEdit(ctx context.Context, req *Request, payload string) error {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return nil
	}
	if err := h.requireOwned(ctx, req, id); err != nil {
		return nil
	}
	h.dialogs.begin(dialogKey{ChatID: req.Chat.ChatID, UserID: req.FromID}, stateAwaitText, id)
	h.edit(ctx, req, textEnterText)
	return nil
}

func (h *Handlers) cbTaskDelete(ctx context.Context, req *Request, payload string) error {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return nil
	}
	kb := tgui.ConfirmInline(
		tgui.Btn(btnYes, tgui.Data("task", "del_yes", payload)),
		tgui.Btn(btnNo, tgui.Data("task", "del_no", "")),
	)
	ref := kit.MessageRef{ChatID: req.Chat.ChatID, MessageID: req.Update.Callback.MessageID}
	opt := &kit.SendOptions{ReplyMarkupAdapter: kb.Markup()}
	if err := req.Adapter.EditText(ctx, ref, fmt.Sprintf("Удалить задачу %d?", id), opt); err != nil {
		req.Logger.Warn("edit failed", logx.Err(err))
	}
	return nil
}

func (h *Handlers) cbTaskDeleteYes(ctx context.Context, req *Request, payload string) error {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return nil
	}
	if err := h.coord.Delete(ctx, req.FromID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.edit(ctx, req, fmt.Sprintf("Задача с ID %d не найдена.", id))
			return nil
		}
		req.Logger.Error("delete failed", logx.Err(err))
		h.edit(ctx, req, "Ошибка при удалении задачи. Попробуйте снова.")
		return nil
	}
	h.edit(ctx, req, fmt.Sprintf("Задача %d удалена.", id))
	return nil
}

func (h *Handlers) cbTaskDeleteNo(ctx context.Context, req *Request, _ string) error {
	h.edit(ctx, req, textDeleteAbort)
	return nil
}

func (h *Handlers) requireOwned(ctx context.Context, req *Request, id int64) error {
	list, err := h.coord.List(ctx, req.FromID)
	if err != nil {
		return err
	}
	for _, t := range list {
		if t.ID == id {
			return nil
		}
	}
	h.edit(ctx, req, fmt.Sprintf("Задача с ID %d не найдена.", id))
	return storage.ErrNotFound
}

// ---- edit dialog ----

// onText feeds plain text into the active edit dialog, if any.
func (h *Handlers) onText(ctx context.Context, req *Request) bool {
	key := dialogKey{ChatID: req.Chat.ChatID, UserID: req.FromID}
	d, ok := h.dialogs.get(key)
	if !ok {
		return false
	}
	text := req.Update.Message.Text

	switch d.state {
	case stateAwaitID:
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			h.reply(ctx, req, textEnterIDAgain)
			return true
		}
		if err := h.requireOwned(ctx, req, id); err != nil {
			h.dialogs.end(key)
			return true
		}
		h.dialogs.advance(key, func(d *dialog) {
			d.state = stateAwaitText
			d.taskID = id
		})
		h.reply(ctx, req, textEnterText)
		return true

	case stateAwaitText:
		h.dialogs.advance(key, func(d *dialog) {
			d.state = stateAwaitDue
			d.newText = text
		})
		h.reply(ctx, req, textEnterDue)
		return true

	case stateAwaitDue:
		due, err := duespec.ParseAbsolute(text)
		if err != nil {
			h.reply(ctx, req, textEnterDueBad)
			return true
		}
		taskID, newText := d.taskID, d.newText
		h.dialogs.end(key)
		if err := h.coord.Edit(ctx, req.FromID, taskID, newText, due); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				h.reply(ctx, req, fmt.Sprintf("Задача с ID %d не найдена.", taskID))
				return true
			}
			req.Logger.Error("edit failed", logx.Err(err))
			h.reply(ctx, req, textEditFailed)
			return true
		}
		h.reply(ctx, req, fmt.Sprintf("Задача %d обновлена.", taskID))
		return true
	}
	return false
}
