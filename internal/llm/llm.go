// Package llm declares the hosted language-model capabilities the assistant
// consumes: embeddings, chat completion and moderation.
package llm

import "context"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChatModel produces a completion for a system prompt and conversation.
type ChatModel interface {
	Complete(ctx context.Context, system string, messages []Message, temperature float32, maxTokens int) (string, error)
}

// Moderator reports whether text violates the provider's content policy.
type Moderator interface {
	Check(ctx context.Context, text string) (flagged bool, err error)
}
