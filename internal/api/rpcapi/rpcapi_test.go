package rpcapi

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge"
	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/rpc"
)

type fakeKnowledge struct {
	mu      sync.Mutex
	channel string
}

func (f *fakeKnowledge) lastChannel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel
}

func (f *fakeKnowledge) Ask(ctx context.Context, q string) (knowledge.Result, error) {
	if q == "" {
		return knowledge.Result{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query is required")
	}
	f.mu.Lock()
	f.channel = analytics.ChannelFrom(ctx)
	f.mu.Unlock()
	return knowledge.Result{Query: q, Answer: "Apply to the authority.", Confidence: 0.5}, nil
}

func (f *fakeKnowledge) Refresh(context.Context) (int, error) { return 4, nil }

func dial(t *testing.T, kb Knowledge) *rpc.Client {
	t.Helper()
	s := rpc.NewServer()
	Register(s, kb)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.ServeListener(ln) }()
	t.Cleanup(s.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := rpc.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAskOverRPC(t *testing.T) {
	kb := &fakeKnowledge{}
	c := dial(t, kb)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var resp rpc.AskResponse
	require.NoError(t, c.Call(ctx, rpc.MethodAsk, rpc.AskRequest{Query: "drone permits?"}, &resp))
	assert.Equal(t, "Apply to the authority.", resp.Answer)
	assert.Equal(t, 0.5, resp.Confidence)
	assert.Equal(t, "rpc", kb.lastChannel())

	require.NoError(t, c.Call(ctx, rpc.MethodAsk, rpc.AskRequest{Query: "drone permits?", Channel: "cli"}, &resp))
	assert.Equal(t, "cli", kb.lastChannel())
}

func TestAskRejectsEmptyQuery(t *testing.T) {
	c := dial(t, &fakeKnowledge{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Call(ctx, rpc.MethodAsk, rpc.AskRequest{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "query is required")
}

func TestRefreshOverRPC(t *testing.T) {
	c := dial(t, &fakeKnowledge{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var resp rpc.RefreshResponse
	require.NoError(t, c.Call(ctx, rpc.MethodRefresh, struct{}{}, &resp))
	assert.Equal(t, 4, resp.DocumentsProcessed)
}
