// Package bot answers regulatory questions over Telegram. Commands are
// /start, /help and /update; any other text is treated as a question.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/bot/session"
	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/metrics"
)

// maxMessageLength is Telegram's limit on one text message.
const maxMessageLength = 4096

// Sender delivers outgoing messages. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Config struct {
	Domain                 string
	LowConfidenceThreshold float64
	// AnswerTimeout bounds one question or refresh.
	AnswerTimeout time.Duration
}

type Bot struct {
	assistant Assistant
	sender    Sender
	sessions  session.Store
	limiter   ratelimit.Limiter
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
	inflight  sync.WaitGroup
}

// New returns a Bot. limiter may be nil to disable per-conversation limits.
func New(assistant Assistant, sender Sender, sessions session.Store, limiter ratelimit.Limiter, cfg Config, m *metrics.Metrics) *Bot {
	if cfg.LowConfidenceThreshold <= 0 {
		cfg.LowConfidenceThreshold = 0.5
	}
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = 2 * time.Minute
	}
	if cfg.Domain == "" {
		cfg.Domain = "Tanzanian aviation regulations"
	}
	return &Bot{
		assistant: assistant,
		sender:    sender,
		sessions:  sessions,
		limiter:   limiter,
		cfg:       cfg,
		metrics:   m,
		logger:    slog.Default().With("component", "telegram-bot"),
	}
}

// Dispatch handles update in the background, detached from the caller's
// cancellation. Wait blocks until every dispatched update is done.
func (b *Bot) Dispatch(ctx context.Context, update tgbotapi.Update) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.HandleUpdate(context.WithoutCancel(ctx), update)
	}()
}

func (b *Bot) Wait() {
	b.inflight.Wait()
}

// HandleUpdate processes one update. Updates without a text message are
// ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	chatID := msg.Chat.ID
	ctx = logger.WithRequestID(ctx, "tg-"+strconv.Itoa(update.UpdateID))
	log := logger.FromContext(ctx).With("component", "telegram-bot", "chat_id", chatID)

	if _, err := b.sessions.Touch(ctx, chatID); err != nil {
		log.Warn("session update failed", "error", err)
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, log, chatID, msg.Command())
		return
	}
	b.handleQuestion(ctx, log, chatID, msg.Text)
}

func (b *Bot) handleCommand(ctx context.Context, log *slog.Logger, chatID int64, command string) {
	b.metrics.BotMessage("command")
	switch command {
	case "start":
		b.reply(log, chatID, welcomeMessage(b.cfg.Domain))
	case "help":
		b.reply(log, chatID, helpMessage(b.cfg.Domain))
	case "update":
		if !b.allow(ctx, log, chatID) {
			return
		}
		b.reply(log, chatID, "🔄 Updating knowledge base...")
		ctx, cancel := context.WithTimeout(ctx, b.cfg.AnswerTimeout)
		defer cancel()
		n, err := b.assistant.Refresh(ctx)
		if err != nil {
			log.Error("refresh from chat failed", "error", err)
			b.reply(log, chatID, "❌ Error updating knowledge base: "+apperrors.PublicMessage(err))
			return
		}
		b.reply(log, chatID, fmt.Sprintf("✅ Knowledge base updated successfully! %d documents indexed.", n))
	default:
		b.reply(log, chatID, "Unknown command. Send /help to see what I can do.")
	}
}

func (b *Bot) handleQuestion(ctx context.Context, log *slog.Logger, chatID int64, text string) {
	b.metrics.BotMessage("question")
	if !b.allow(ctx, log, chatID) {
		return
	}
	b.reply(log, chatID, "🔍 Searching for information...")

	askCtx, cancel := context.WithTimeout(ctx, b.cfg.AnswerTimeout)
	defer cancel()
	answer, err := b.assistant.Ask(askCtx, text)
	if err != nil {
		log.Error("question failed", "error", err)
		b.reply(log, chatID, "❌ Sorry, I encountered an error: "+apperrors.PublicMessage(err))
		return
	}

	reply := answer.Text
	if answer.Confidence < b.cfg.LowConfidenceThreshold {
		reply += LowConfidenceNote
	}
	b.reply(log, chatID, reply)

	if err := b.sessions.AddTurn(ctx, chatID, session.Turn{
		Question:   text,
		Answer:     answer.Text,
		Confidence: answer.Confidence,
		At:         time.Now().UTC(),
	}); err != nil {
		log.Warn("recording turn failed", "error", err)
	}
}

func (b *Bot) allow(ctx context.Context, log *slog.Logger, chatID int64) bool {
	if b.limiter == nil {
		return true
	}
	ok, err := b.limiter.Allow(ctx, strconv.FormatInt(chatID, 10))
	if err != nil {
		log.Warn("rate limiter unavailable, allowing message", "error", err)
		return true
	}
	if !ok {
		b.metrics.BotMessage("rate_limited")
		b.reply(log, chatID, RateLimitedMessage)
	}
	return ok
}

// reply sends text, split into Telegram-sized chunks.
func (b *Bot) reply(log *slog.Logger, chatID int64, text string) {
	for _, chunk := range splitMessage(text, maxMessageLength) {
		if _, err := b.sender.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			log.Error("sending message failed", "error", err)
			return
		}
	}
}

// splitMessage breaks text into pieces of at most limit runes, preferring
// paragraph and line boundaries.
func splitMessage(text string, limit int) []string {
	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		window := string(runes[:limit])
		if i := strings.LastIndex(window, "\n\n"); i > 0 {
			cut = len([]rune(window[:i]))
		} else if i := strings.LastIndex(window, "\n"); i > 0 {
			cut = len([]rune(window[:i]))
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), "\n"))
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
