// Command assistant starts the regulatory Q&A service.
//
// It loads the persisted similarity index, serves the HTTP API (ask, refresh,
// documents, analytics, cache), receives Telegram updates through a webhook
// when a bot token is configured, and exposes Knowledge.Ask and
// Knowledge.Refresh on the internal RPC endpoint for the CLI and the polling
// bot. Redis, PostgreSQL and Kafka are optional: without them answers are not
// cached, the ingestion ledger is off and analytics stay in process.
//
// Usage:
//
//	go run ./cmd/assistant [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics/snapshot"
	apihandler "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/api/router"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/api/rpcapi"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/bot"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/bot/session"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/docstore/drive"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/extract"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/synth"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/llm/openai"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/rpc"
)

const (
	serviceName = "regulatory-qa-assistant"
	version     = "1.0.0"
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
	if err := cfg.Validate(true); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("starting assistant", "port", cfg.Server.Port, "version", version)

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

	checker := health.NewChecker(serviceName, version)

	// OpenAI serves embeddings, chat and moderation.
	llmClient := openai.New(cfg.OpenAI, m)

	store, err := drive.New(ctx, cfg.Drive, m)
	if err != nil {
		slog.Error("failed to create drive client", "error", err)
		os.Exit(1)
	}

	systemPrompt := cfg.Knowledge.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = synth.SystemPrompt(cfg.Knowledge.Domain)
	}
	synthesizer := synth.New(llmClient, llmClient, synth.Config{
		SystemPrompt: systemPrompt,
		Temperature:  cfg.OpenAI.Temperature,
		MaxTokens:    cfg.OpenAI.MaxTokens,
	})

	var opts []knowledge.Option
	opts = append(opts, knowledge.WithMetrics(m))

	// Redis: answer cache, chat sessions, shared rate limits.
	var (
		answers     *cache.AnswerCache
		sessions    session.Store
		apiLimiter  ratelimit.Limiter
		chatLimiter ratelimit.Limiter
	)
	if cfg.Redis.Addr != "" {
		rdb, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)

		answers = cache.New(rdb, cfg.Redis.CacheTTL, m)
		opts = append(opts, knowledge.WithCache(answers))
		sessions = session.NewRedis(rdb, cfg.Session.IdleTimeout, cfg.Session.MaxTurns)
		apiLimiter = ratelimit.NewWindow(rdb, "ratelimit:api:", cfg.RateLimit.RequestsPerMinute, time.Minute)
		chatLimiter = ratelimit.NewWindow(rdb, "ratelimit:chat:", cfg.Session.MessagesPerHour, time.Hour)
		checker.Register("redis", health.PingCheck(rdb.Ping))
	} else {
		mem := session.NewMemory(cfg.Session.IdleTimeout, cfg.Session.MaxTurns)
		go mem.Run(ctx, time.Minute)
		sessions = mem

		apiBucket := ratelimit.NewBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
		go apiBucket.Run(ctx, 5*time.Minute)
		apiLimiter = apiBucket

		chatBucket := ratelimit.NewBucket(cfg.Session.MessagesPerHour, time.Hour)
		go chatBucket.Run(ctx, 5*time.Minute)
		chatLimiter = chatBucket
	}

	// PostgreSQL: ingestion ledger and analytics snapshots.
	var (
		ledgerStore *ledger.Store
		snapshots   *snapshot.Store
	)
	if cfg.Postgres.Host != "" {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("connected to postgres", "host", cfg.Postgres.Host)

		ledgerStore = ledger.NewStore(db)
		snapshots = snapshot.NewStore(db)
		for name, migrate := range map[string]func(context.Context) error{
			"ledger":    ledgerStore.Migrate,
			"snapshots": snapshots.Migrate,
		} {
			if err := migrate(ctx); err != nil {
				slog.Error("migration failed", "schema", name, "error", err)
				os.Exit(1)
			}
		}
		opts = append(opts, knowledge.WithLedger(ledgerStore))
		checker.Register("postgres", health.PingCheck(db.Ping))
	}

	// Analytics: events go through Kafka when brokers are configured and
	// straight into the local aggregator otherwise.
	aggregator := analytics.NewAggregator(cfg.Telegram.LowConfidenceThreshold)
	var collector *analytics.Collector
	if len(cfg.Kafka.Brokers) > 0 {
		queryProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryAnalytics)
		defer queryProducer.Close()
		refreshProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.KnowledgeRefreshed)
		defer refreshProducer.Close()
		collector = analytics.NewCollector(queryProducer, refreshProducer, 100, 5*time.Second)

		for _, topic := range []string{cfg.Kafka.Topics.QueryAnalytics, cfg.Kafka.Topics.KnowledgeRefreshed} {
			consumer := kafka.NewConsumer(cfg.Kafka, topic, analytics.HandleEvent(aggregator))
			go func() {
				if err := consumer.Start(ctx); err != nil {
					slog.Error("analytics consumer error", "topic", topic, "error", err)
				}
			}()
		}
		slog.Info("analytics events routed through kafka", "brokers", cfg.Kafka.Brokers)
	} else {
		collector = analytics.NewCollector(aggregator, aggregator, 100, 5*time.Second)
	}
	collector.Start(ctx)
	defer collector.Close()
	opts = append(opts, knowledge.WithEvents(collector))

	if snapshots != nil {
		go snapshots.Run(ctx, aggregator, time.Minute)
	}

	kb := knowledge.New(store, extract.NewRegistry(), llmClient, synthesizer, knowledge.Config{
		FolderID:           cfg.Drive.FolderID,
		IndexPath:          cfg.Knowledge.IndexPath,
		TopK:               cfg.Knowledge.TopK,
		RefreshConcurrency: cfg.Knowledge.RefreshConcurrency,
		AnswerTimeout:      cfg.Knowledge.AnswerTimeout,
		EmbeddingModel:     cfg.OpenAI.EmbeddingModel,
	}, opts...)
	slog.Info("knowledge base loaded", "documents", kb.Stats().Documents)

	checker.Register("index", func(context.Context) health.ComponentHealth {
		if kb.Stats().Documents == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "index is empty, run a refresh"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	// Telegram webhook.
	var webhook http.Handler
	var chatBot *bot.Bot
	if cfg.Telegram.BotToken != "" {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			slog.Error("failed to create telegram client", "error", err)
			os.Exit(1)
		}
		chatBot = bot.New(bot.Local(kb), api, sessions, chatLimiter, bot.Config{
			Domain:                 cfg.Knowledge.Domain,
			LowConfidenceThreshold: cfg.Telegram.LowConfidenceThreshold,
		}, m)
		webhook = chatBot.WebhookHandler(cfg.Telegram.WebhookSecret)
		slog.Info("telegram webhook enabled", "bot", api.Self.UserName)
	}

	// HTTP API.
	var (
		docLedger  apihandler.Ledger
		cacheStats apihandler.CacheStats
		history    analytics.History
	)
	if ledgerStore != nil {
		docLedger = ledgerStore
	}
	if answers != nil {
		cacheStats = answers
	}
	if snapshots != nil {
		history = snapshots
	}
	h := apihandler.New(kb, docLedger, cacheStats, apihandler.Config{
		Service:        serviceName,
		Version:        version,
		MaxQueryLength: cfg.Knowledge.MaxQueryLength,
	})
	chain := router.New(router.Deps{
		Handler:   h,
		Analytics: analytics.NewHandler(aggregator, history),
		Webhook:   webhook,
		Health:    checker,
		Admin:     apikey.NewValidator(cfg.Auth.AdminKeys),
		Limiter:   apiLimiter,
		Metrics:   m,
	}, router.Options{
		RequestTimeout: cfg.Server.WriteTimeout,
		RefreshTimeout: 30 * time.Minute,
	})

	// Internal RPC.
	if cfg.RPC.Enabled {
		rpcServer := rpc.NewServer()
		rpcapi.Register(rpcServer, kb)
		go func() {
			if err := rpcServer.Serve(cfg.RPC.Addr); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
		defer rpcServer.Stop()
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     chain,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("assistant listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	if chatBot != nil {
		chatBot.Wait()
	}
	slog.Info("assistant stopped")
}
