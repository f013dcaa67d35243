package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
)

func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.ServeListener(ln) }()
	t.Cleanup(s.Stop)
	return ln.Addr().String()
}

func TestAskRoundTrip(t *testing.T) {
	s := NewServer()
	s.Register(MethodAsk, func(ctx context.Context, params json.RawMessage) (any, error) {
		var req AskRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		return AskResponse{Query: req.Query, Answer: "Part 61", Confidence: 0.7}, nil
	})
	addr := startServer(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	var resp AskResponse
	require.NoError(t, c.Call(ctx, MethodAsk, AskRequest{Query: "licensing?"}, &resp))
	assert.Equal(t, AskResponse{Query: "licensing?", Answer: "Part 61", Confidence: 0.7}, resp)
}

func TestErrorsKeepTheirClass(t *testing.T) {
	s := NewServer()
	s.Register(MethodAsk, func(context.Context, json.RawMessage) (any, error) {
		return nil, fmt.Errorf("%w: query is empty", apperrors.ErrInvalidInput)
	})
	s.Register(MethodRefresh, func(context.Context, json.RawMessage) (any, error) {
		return nil, apperrors.Embedding(fmt.Errorf("quota"))
	})
	addr := startServer(t, s)

	ctx := context.Background()
	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	err = c.Call(ctx, MethodAsk, AskRequest{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	err = c.Call(ctx, MethodRefresh, struct{}{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.NotContains(t, err.Error(), "quota")

	err = c.Call(ctx, "Knowledge.Nope", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
