// Package router wires the assistant's HTTP routes and middleware.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	apihandler "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/api/handler"
	apimw "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/api/middleware"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/middleware"
)

// Deps are the collaborators behind the routes. Analytics and Webhook are
// optional.
type Deps struct {
	Handler   *apihandler.Handler
	Analytics *analytics.Handler
	Webhook   http.Handler
	Health    *health.Checker
	Admin     *apikey.Validator
	Limiter   ratelimit.Limiter
	Metrics   *metrics.Metrics
}

type Options struct {
	RequestTimeout time.Duration
	RefreshTimeout time.Duration
	CORSOrigins    []string
}

// New builds the HTTP handler.
//
// Route table:
//
//	GET    /                           service banner
//	GET    /health/live                liveness
//	GET    /health/ready               readiness
//	POST   /api/v1/ask                 ask a question
//	GET    /api/v1/index/stats         index size, dimension and model
//	GET    /api/v1/documents           ingestion ledger
//	GET    /api/v1/analytics           live query analytics
//	GET    /api/v1/analytics/history   persisted analytics snapshots
//	GET    /api/v1/cache/stats         answer cache stats
//	POST   /api/v1/refresh             re-ingest documents   (admin)
//	POST   /api/v1/cache/invalidate    drop cached answers   (admin)
//	POST   /api/v1/telegram/webhook    Telegram updates
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → RateLimit → Timeout → Auth → handler
func New(d Deps, opts Options) http.Handler {
	mux := http.NewServeMux()
	h := d.Handler

	timeout := pkgmw.Timeout(opts.RequestTimeout)
	admin := apimw.RequireAdmin(d.Admin)

	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
	mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())

	mux.Handle("POST /api/v1/ask", timeout(http.HandlerFunc(h.Ask)))
	mux.Handle("GET /api/v1/index/stats", http.HandlerFunc(h.IndexStats))
	mux.Handle("GET /api/v1/documents", timeout(http.HandlerFunc(h.ListDocuments)))
	mux.Handle("GET /api/v1/cache/stats", timeout(http.HandlerFunc(h.CacheStats)))

	if d.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", d.Analytics.Stats)
		mux.Handle("GET /api/v1/analytics/history", timeout(http.HandlerFunc(d.Analytics.History)))
	}

	mux.Handle("POST /api/v1/refresh", pkgmw.Timeout(opts.RefreshTimeout)(admin(http.HandlerFunc(h.Refresh))))
	mux.Handle("POST /api/v1/cache/invalidate", timeout(admin(http.HandlerFunc(h.InvalidateCache))))

	if d.Webhook != nil {
		mux.Handle("POST /api/v1/telegram/webhook", d.Webhook)
	}

	var chain http.Handler = mux
	if d.Limiter != nil {
		chain = apimw.RateLimit(d.Limiter)(chain)
	}
	chain = pkgmw.Metrics(d.Metrics)(chain)
	chain = apimw.CORS(opts.CORSOrigins)(chain)
	chain = pkgmw.RequestID(chain)
	return chain
}
