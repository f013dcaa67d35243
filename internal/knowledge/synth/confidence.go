package synth

import (
	"math"
	"strings"
)

// insufficientPhrases mark an answer the model could not ground.
var insufficientPhrases = []string{
	"cannot be found in the context",
	"not found in the context",
	"no information",
}

// Confidence scores an answer: 0 without retrieved documents, 0.3 when the
// answer admits the context was insufficient, otherwise 0.3 + 0.2 per
// document capped at 0.9. It is a heuristic, not a probability.
func Confidence(answer string, retrieved int) float64 {
	if retrieved == 0 {
		return 0.0
	}
	lower := strings.ToLower(answer)
	for _, p := range insufficientPhrases {
		if strings.Contains(lower, p) {
			return 0.3
		}
	}
	score := 0.3 + 0.2*float64(retrieved)
	// Round away float noise so 0.3+0.2*2 reports 0.7.
	score = math.Round(score*100) / 100
	return math.Min(score, 0.9)
}
