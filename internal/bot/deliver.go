package bot

import (
	"context"

	kit "remindbot/internal/transport"
)

// Deliver builds the scheduler delivery callback. For private chats the
// chat id equals the owner's user id, so reminders go straight to the user.
func Deliver(adapter kit.Adapter) func(ctx context.Context, owner int64, text string) error {
	return func(ctx context.Context, owner int64, text string) error {
		_, err := adapter.SendText(ctx, kit.ChatTarget{ChatID: owner}, "Напоминание: "+text, nil)
		return err
	}
}
