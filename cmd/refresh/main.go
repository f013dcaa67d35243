// Command refresh re-ingests every document in the configured Drive folder
// and writes the persisted similarity index, then exits. A running assistant
// picks the new index up on its next start; use POST /api/v1/refresh to
// refresh a live process instead.
//
// Usage:
//
//	go run ./cmd/refresh [-config configs/development.yaml] [-timeout 30m]
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

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/docstore/drive"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/extract"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/synth"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/llm/openai"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/redis"
)

func main() {
	_ = godotenv.Load()
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	timeout := flag.Duration("timeout", 30*time.Minute, "upper bound for the whole refresh")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	llmClient := openai.New(cfg.OpenAI, nil)
	store, err := drive.New(ctx, cfg.Drive, nil)
	if err != nil {
		slog.Error("failed to create drive client", "error", err)
		os.Exit(1)
	}

	var opts []knowledge.Option
	if cfg.Redis.Addr != "" {
		rdb, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, cached answers will expire on their own", "error", err)
		} else {
			defer rdb.Close()
			opts = append(opts, knowledge.WithCache(cache.New(rdb, cfg.Redis.CacheTTL, nil)))
		}
	}
	if cfg.Postgres.Host != "" {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		l := ledger.NewStore(db)
		if err := l.Migrate(ctx); err != nil {
			slog.Error("ledger migration failed", "error", err)
			os.Exit(1)
		}
		opts = append(opts, knowledge.WithLedger(l))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.KnowledgeRefreshed)
		defer producer.Close()
		opts = append(opts, knowledge.WithEvents(refreshEvents{producer: producer}))
	}

	synthesizer := synth.New(llmClient, llmClient, synth.Config{
		SystemPrompt: synth.SystemPrompt(cfg.Knowledge.Domain),
		Temperature:  cfg.OpenAI.Temperature,
		MaxTokens:    cfg.OpenAI.MaxTokens,
	})
	kb := knowledge.New(store, extract.NewRegistry(), llmClient, synthesizer, knowledge.Config{
		FolderID:           cfg.Drive.FolderID,
		IndexPath:          cfg.Knowledge.IndexPath,
		TopK:               cfg.Knowledge.TopK,
		RefreshConcurrency: cfg.Knowledge.RefreshConcurrency,
		AnswerTimeout:      cfg.Knowledge.AnswerTimeout,
		EmbeddingModel:     cfg.OpenAI.EmbeddingModel,
	}, opts...)

	started := time.Now()
	n, err := kb.Refresh(ctx)
	if err != nil {
		slog.Error("refresh failed", "error", err)
		os.Exit(1)
	}
	slog.Info("refresh complete",
		"documents_processed", n,
		"index_path", cfg.Knowledge.IndexPath,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	fmt.Printf("Processed %d documents\n", n)
}

// refreshEvents publishes the refresh event synchronously so it is sent
// before the process exits.
type refreshEvents struct {
	producer *kafka.Producer
}

func (refreshEvents) QueryAnswered(context.Context, analytics.QueryEvent) {}

func (e refreshEvents) Refreshed(ctx context.Context, ev analytics.RefreshEvent) {
	err := e.producer.Publish(ctx, kafka.Event{Key: ev.RunID, Type: string(analytics.EventRefreshed), Value: ev})
	if err != nil {
		slog.Warn("failed to publish refresh event", "run_id", ev.RunID, "error", err)
	}
}
