package synth

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/index"
)

// Fixed answers.
const (
	RefusalAnswer = "I cannot answer this question due to content guidelines."
	ApologyAnswer = "I encountered an error while processing your query. Please try again later."
)

const systemPromptTemplate = "You are an AI assistant specialized in %s. Answer questions based on the provided context. If the answer cannot be found in the context, say so."

// SystemPrompt returns the instruction constraining answers to domain.
func SystemPrompt(domain string) string {
	return fmt.Sprintf(systemPromptTemplate, domain)
}

// BuildContext concatenates the retrieved documents in ranked order.
func BuildContext(docs []index.Match) string {
	var b strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&b, "Document: %s\n\n%s\n\n", d.Name, d.Content)
	}
	return b.String()
}

// UserTurn frames the question with its grounding context.
func UserTurn(context, query string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", context, query)
}
