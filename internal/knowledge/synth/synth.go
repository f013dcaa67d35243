// Package synth turns a question plus retrieved documents into an answer
// with a confidence score. It never returns an error: moderation failures
// are ignored and generation failures become a fixed apology.
package synth

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/llm"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/tracing"
)

// Result is a synthesized answer.
type Result struct {
	Answer     string
	Confidence float64
	Outcome    Outcome
}

// Outcome tells how an answer was produced.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeRefused  Outcome = "refused"
	OutcomeApology  Outcome = "apology"
)

// Config tunes generation.
type Config struct {
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
}

// Synthesizer answers questions from retrieved context.
type Synthesizer struct {
	chat      llm.ChatModel
	moderator llm.Moderator
	cfg       Config
}

// New returns a Synthesizer. A nil moderator skips the safety filter.
func New(chat llm.ChatModel, moderator llm.Moderator, cfg Config) *Synthesizer {
	if cfg.Temperature > 0.3 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	return &Synthesizer{chat: chat, moderator: moderator, cfg: cfg}
}

// Synthesize answers query from docs, which must be in ranked order.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, docs []index.Match) Result {
	log := logger.FromContext(ctx).With("component", "synthesizer")

	if s.flagged(ctx, log, query) {
		log.Info("query refused by moderation")
		return Result{Answer: RefusalAnswer, Confidence: Confidence(RefusalAnswer, len(docs)), Outcome: OutcomeRefused}
	}

	ctx, span := tracing.StartChildSpan(ctx, "generate")
	defer span.End()
	span.SetAttr("documents", len(docs))

	answer, err := s.chat.Complete(ctx, s.cfg.SystemPrompt, []llm.Message{
		{Role: llm.RoleUser, Content: UserTurn(BuildContext(docs), query)},
	}, s.cfg.Temperature, s.cfg.MaxTokens)
	if err != nil {
		log.Error("chat completion failed", "error", err)
		return Result{Answer: ApologyAnswer, Confidence: 0.0, Outcome: OutcomeApology}
	}
	return Result{Answer: answer, Confidence: Confidence(answer, len(docs)), Outcome: OutcomeAnswered}
}

func (s *Synthesizer) flagged(ctx context.Context, log *slog.Logger, query string) bool {
	if s.moderator == nil {
		return false
	}
	ctx, span := tracing.StartChildSpan(ctx, "moderate")
	defer span.End()
	flagged, err := s.moderator.Check(ctx, query)
	if err != nil {
		log.Warn("moderation unavailable, continuing", "error", err)
		return false
	}
	return flagged
}
