package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Updater is the long-polling side of *tgbotapi.BotAPI.
type Updater interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poll long-polls for updates and handles each one until ctx is cancelled,
// then waits for in-flight answers to finish.
func (b *Bot) Poll(ctx context.Context, updater Updater, timeoutSeconds int) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSeconds
	updates := updater.GetUpdatesChan(u)
	b.logger.Info("polling for updates", "timeout_seconds", timeoutSeconds)

	for {
		select {
		case <-ctx.Done():
			updater.StopReceivingUpdates()
			b.Wait()
			b.logger.Info("polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				b.Wait()
				return
			}
			b.Dispatch(ctx, update)
		}
	}
}
