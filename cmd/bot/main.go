// Command bot runs the Telegram bot with long polling, for deployments where
// the assistant cannot receive webhooks. Questions and /update commands are
// forwarded to the assistant over the internal RPC endpoint.
//
// Usage:
//
//	go run ./cmd/bot [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/bot"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/bot/session"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/rpc"
)

func main() {
	_ = godotenv.Load()
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Telegram.BotToken == "" {
		slog.Error("invalid configuration", "error", "missing telegram.botToken")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := rpc.Dial(dialCtx, cfg.RPC.Addr)
	cancel()
	if err != nil {
		slog.Error("cannot reach assistant", "addr", cfg.RPC.Addr, "error", err)
		os.Exit(1)
	}
	defer client.Close()
	slog.Info("connected to assistant", "addr", cfg.RPC.Addr)

	var (
		sessions session.Store
		limiter  ratelimit.Limiter
	)
	if cfg.Redis.Addr != "" {
		rdb, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		sessions = session.NewRedis(rdb, cfg.Session.IdleTimeout, cfg.Session.MaxTurns)
		limiter = ratelimit.NewWindow(rdb, "ratelimit:chat:", cfg.Session.MessagesPerHour, time.Hour)
	} else {
		mem := session.NewMemory(cfg.Session.IdleTimeout, cfg.Session.MaxTurns)
		go mem.Run(ctx, time.Minute)
		sessions = mem
		bucket := ratelimit.NewBucket(cfg.Session.MessagesPerHour, time.Hour)
		go bucket.Run(ctx, 5*time.Minute)
		limiter = bucket
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		slog.Error("failed to create telegram client", "error", err)
		os.Exit(1)
	}
	// Polling and webhooks are mutually exclusive on Telegram's side.
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		slog.Warn("failed to remove webhook", "error", err)
	}
	slog.Info("telegram bot authorized", "bot", api.Self.UserName)

	b := bot.New(bot.Remote(client), api, sessions, limiter, bot.Config{
		Domain:                 cfg.Knowledge.Domain,
		LowConfidenceThreshold: cfg.Telegram.LowConfidenceThreshold,
	}, m)
	b.Poll(ctx, api, cfg.Telegram.PollTimeout)

	slog.Info("bot stopped")
}
