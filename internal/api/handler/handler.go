// Package handler implements the assistant's HTTP endpoints: asking
// questions, refreshing the knowledge base and inspecting the index, the
// ingestion ledger and the answer cache.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/ledger"
	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/logger"
)

const maxBodySize = 64 << 10

// Knowledge is the subset of *knowledge.Base the API serves.
type Knowledge interface {
	Ask(ctx context.Context, query string) (knowledge.Result, error)
	Refresh(ctx context.Context) (int, error)
	Stats() knowledge.Stats
	InvalidateCache(ctx context.Context) (int64, error)
}

// Ledger lists ingestion outcomes.
type Ledger interface {
	ListDocuments(ctx context.Context) ([]ledger.Document, error)
	LatestRun(ctx context.Context) (*ledger.Run, error)
}

// CacheStats reports answer cache effectiveness.
type CacheStats interface {
	Stats(ctx context.Context) cache.Stats
}

type Config struct {
	Service        string
	Version        string
	MaxQueryLength int
}

type Handler struct {
	kb       Knowledge
	ledger   Ledger
	cache    CacheStats
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger
}

// New returns a Handler. ledger and cacheStats may be nil when Postgres or
// Redis are not configured.
func New(kb Knowledge, ledger Ledger, cacheStats CacheStats, cfg Config) *Handler {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 4000
	}
	return &Handler{
		kb:       kb,
		ledger:   ledger,
		cache:    cacheStats,
		cfg:      cfg,
		validate: validator.New(),
		logger:   slog.Default().With("component", "api-handler"),
	}
}

type askRequest struct {
	Query string `json:"query"`
}

type askResponse struct {
	Status     string   `json:"status"`
	Query      string   `json:"query"`
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
	Cached     bool     `json:"cached"`
}

// Root serves the service banner.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"service": h.cfg.Service,
		"version": h.cfg.Version,
		"status":  "running",
	})
}

// Ask answers {"query": "..."}.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if msg := h.validateQuery(req.Query); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := h.kb.Ask(analytics.WithChannel(r.Context(), "http"), req.Query)
	if err != nil {
		h.handleError(w, r, "ask failed", err)
		return
	}
	sources := res.Sources
	if sources == nil {
		sources = []string{}
	}
	h.writeJSON(w, http.StatusOK, askResponse{
		Status:     "success",
		Query:      res.Query,
		Answer:     res.Answer,
		Confidence: res.Confidence,
		Sources:    sources,
		Cached:     res.Cached,
	})
}

func (h *Handler) validateQuery(q string) string {
	err := h.validate.Var(q, fmt.Sprintf("required,max=%d", h.cfg.MaxQueryLength))
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ""
	}
	switch verrs[0].Tag() {
	case "required":
		return "query is required"
	case "max":
		return fmt.Sprintf("query must be at most %d characters", h.cfg.MaxQueryLength)
	default:
		return "invalid query"
	}
}

// Refresh re-ingests every document and reports how many were indexed.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	n, err := h.kb.Refresh(r.Context())
	if err != nil {
		h.handleError(w, r, "refresh failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":              "success",
		"documents_processed": n,
	})
}

// ListDocuments returns the ingestion ledger and the latest run.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		h.writeError(w, http.StatusNotFound, "document ledger is not enabled")
		return
	}
	docs, err := h.ledger.ListDocuments(r.Context())
	if err != nil {
		h.handleError(w, r, "listing documents failed", err)
		return
	}
	run, err := h.ledger.LatestRun(r.Context())
	if err != nil {
		h.handleError(w, r, "loading latest run failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents":  docs,
		"count":      len(docs),
		"latest_run": run,
	})
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.kb.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusNotFound, "answer cache is not enabled")
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	n, err := h.kb.InvalidateCache(r.Context())
	if err != nil {
		h.handleError(w, r, "cache invalidation failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "success", "keys_deleted": n})
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context()).With("component", "api-handler")
	if status >= http.StatusInternalServerError {
		log.Error(msg, "error", err)
	} else {
		log.Warn(msg, "error", err)
	}
	h.writeError(w, status, apperrors.PublicMessage(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"status": "error", "error": message})
}
