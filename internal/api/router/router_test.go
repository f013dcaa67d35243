package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	apihandler "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/health"
)

type stubKnowledge struct {
	refreshes int
}

func (s *stubKnowledge) Ask(_ context.Context, q string) (knowledge.Result, error) {
	return knowledge.Result{Query: q, Answer: "See Part 139.", Confidence: 0.5}, nil
}

func (s *stubKnowledge) Refresh(context.Context) (int, error) {
	s.refreshes++
	return 2, nil
}

func (s *stubKnowledge) Stats() knowledge.Stats { return knowledge.Stats{Documents: 2} }

func (s *stubKnowledge) InvalidateCache(context.Context) (int64, error) { return 0, nil }

func newTestRouter(kb *stubKnowledge, limit int) http.Handler {
	return New(Deps{
		Handler:   apihandler.New(kb, nil, nil, apihandler.Config{Service: "regulatory-qa", Version: "test"}),
		Analytics: analytics.NewHandler(analytics.NewAggregator(0.5), nil),
		Webhook: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		Health:  health.NewChecker("regulatory-qa", "test"),
		Admin:   apikey.NewValidator([]string{"admin-secret"}),
		Limiter: ratelimit.NewBucket(limit, time.Minute),
	}, Options{RequestTimeout: 5 * time.Second, RefreshTimeout: time.Minute})
}

func TestRoutes(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(&stubKnowledge{}, 100))
	defer srv.Close()

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodGet, "/health/live", "", http.StatusOK},
		{http.MethodGet, "/health/ready", "", http.StatusOK},
		{http.MethodPost, "/api/v1/ask", `{"query":"aerodrome licence"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/index/stats", "", http.StatusOK},
		{http.MethodGet, "/api/v1/analytics", "", http.StatusOK},
		{http.MethodGet, "/api/v1/analytics/history", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/documents", "", http.StatusNotFound},
		{http.MethodPost, "/api/v1/refresh", "", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/cache/invalidate", "", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/telegram/webhook", "{}", http.StatusOK},
		{http.MethodGet, "/api/v1/ask", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader(tc.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		})
	}
}

func TestAdminRefresh(t *testing.T) {
	kb := &stubKnowledge{}
	h := newTestRouter(kb, 100)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)
	req.Header.Set("X-API-Key", "admin-secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, float64(2), body["documents_processed"])
	assert.Equal(t, 1, kb.refreshes)
}

func TestRateLimitSparesHealth(t *testing.T) {
	h := newTestRouter(&stubKnowledge{}, 1)

	ask := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`{"query":"q"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, ask())
	assert.Equal(t, http.StatusTooManyRequests, ask())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
