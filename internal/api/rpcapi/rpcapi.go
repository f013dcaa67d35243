// Package rpcapi exposes the knowledge base over the internal RPC channel
// used by the ask CLI and the polling chat bot.
package rpcapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge"
	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/rpc"
)

// Knowledge is the part of *knowledge.Base served over RPC.
type Knowledge interface {
	Ask(ctx context.Context, query string) (knowledge.Result, error)
	Refresh(ctx context.Context) (int, error)
}

// Register installs Knowledge.Ask and Knowledge.Refresh on s.
func Register(s *rpc.Server, kb Knowledge) {
	s.Register(rpc.MethodAsk, func(ctx context.Context, params json.RawMessage) (any, error) {
		var req rpc.AskRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "malformed ask request")
		}
		channel := req.Channel
		if channel == "" {
			channel = "rpc"
		}
		res, err := kb.Ask(analytics.WithChannel(ctx, channel), req.Query)
		if err != nil {
			return nil, fmt.Errorf("ask: %w", err)
		}
		return rpc.AskResponse{Query: res.Query, Answer: res.Answer, Confidence: res.Confidence}, nil
	})

	s.Register(rpc.MethodRefresh, func(ctx context.Context, _ json.RawMessage) (any, error) {
		n, err := kb.Refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh: %w", err)
		}
		return rpc.RefreshResponse{DocumentsProcessed: n}, nil
	})
}
