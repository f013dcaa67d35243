// Package openai implements the llm capabilities on the OpenAI API. Every
// call runs under a per-call timeout, bounded retry and a circuit breaker
// per capability.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/llm"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/resilience"
)

// Client talks to the OpenAI API.
type Client struct {
	api     *openai.Client
	cfg     config.OpenAIConfig
	retry   resilience.RetryConfig
	embedCB *resilience.CircuitBreaker
	chatCB  *resilience.CircuitBreaker
	modCB   *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var (
	_ llm.Embedder  = (*Client)(nil)
	_ llm.ChatModel = (*Client)(nil)
	_ llm.Moderator = (*Client)(nil)
)

// New builds a client. A nil m disables metrics.
func New(cfg config.OpenAIConfig, m *metrics.Metrics) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	breaker := func(name string) *resilience.CircuitBreaker {
		return resilience.NewCircuitBreaker(name, resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			OnStateChange: func(name string, to resilience.State) {
				m.BreakerState(name, to.String())
			},
		})
	}
	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		cfg:     cfg,
		retry:   resilience.RetryConfig{MaxAttempts: cfg.MaxAttempts},
		embedCB: breaker("openai-embeddings"),
		chatCB:  breaker("openai-chat"),
		modCB:   breaker("openai-moderation"),
		metrics: m,
		logger:  slog.Default().With("component", "openai"),
	}
}

// EmbeddingModel returns the configured embedding model name.
func (c *Client) EmbeddingModel() string {
	return c.cfg.EmbeddingModel
}

// Embed returns the embedding of text. Failures match
// ErrEmbeddingUnavailable.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := c.call(ctx, "embeddings", c.embedCB, func(ctx context.Context) error {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return resilience.Permanent(errors.New("no embedding data returned"))
		}
		raw := resp.Data[0].Embedding
		vec = make([]float32, len(raw))
		for i := range raw {
			vec[i] = float32(raw[i])
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Embedding(err)
	}
	return vec, nil
}

// Complete returns the first choice of a chat completion.
func (c *Client) Complete(ctx context.Context, system string, messages []llm.Message, temperature float32, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)+1),
	}
	if system != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	var answer string
	err := c.call(ctx, "chat", c.chatCB, func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return resilience.Permanent(errors.New("no completion choices returned"))
		}
		answer = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", apperrors.External("chat completion", err)
	}
	return answer, nil
}

// Check runs text through the moderation endpoint.
func (c *Client) Check(ctx context.Context, text string) (bool, error) {
	var flagged bool
	err := c.call(ctx, "moderation", c.modCB, func(ctx context.Context) error {
		resp, err := c.api.Moderations(ctx, openai.ModerationRequest{
			Input: text,
			Model: c.cfg.ModerationModel,
		})
		if err != nil {
			return err
		}
		if len(resp.Results) == 0 {
			return resilience.Permanent(errors.New("no moderation results returned"))
		}
		flagged = resp.Results[0].Flagged
		return nil
	})
	if err != nil {
		return false, apperrors.External("moderation", err)
	}
	return flagged, nil
}

func (c *Client) call(ctx context.Context, op string, cb *resilience.CircuitBreaker, fn func(ctx context.Context) error) error {
	err := resilience.Call(ctx, "openai-"+op, cb, c.retry, func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, c.cfg.Timeout, "openai-"+op, func(ctx context.Context) error {
			return classify(fn(ctx))
		})
	})
	if err != nil {
		c.metrics.ExternalFailure("openai", op)
		c.logger.Error("openai call failed", "operation", op, "error", err)
	}
	return err
}

// classify marks client errors other than rate limiting as permanent so they
// are not retried.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout {
			return resilience.Permanent(fmt.Errorf("openai status %d: %w", code, err))
		}
	}
	return err
}
