package rpc

// Method names served by the assistant.
const (
	MethodAsk     = "Knowledge.Ask"
	MethodRefresh = "Knowledge.Refresh"
)

// AskRequest asks a single question against the knowledge base.
// Channel names the client surface for analytics and defaults to "rpc".
type AskRequest struct {
	Query   string `json:"query"`
	Channel string `json:"channel,omitempty"`
}

// AskResponse mirrors the knowledge result.
type AskResponse struct {
	Query      string  `json:"query"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// RefreshResponse reports how many documents were indexed.
type RefreshResponse struct {
	DocumentsProcessed int `json:"documents_processed"`
}
