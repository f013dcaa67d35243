package bot

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/rpc"
)

// Assistant is the knowledge base as seen by the bot: in process for the
// webhook, over RPC for the polling binary.
type Assistant interface {
	Ask(ctx context.Context, query string) (Answer, error)
	Refresh(ctx context.Context) (int, error)
}

type Answer struct {
	Text       string
	Confidence float64
}

// Local adapts a knowledge base running in the same process.
func Local(kb *knowledge.Base) Assistant {
	return local{kb: kb}
}

type local struct {
	kb *knowledge.Base
}

func (l local) Ask(ctx context.Context, query string) (Answer, error) {
	res, err := l.kb.Ask(analytics.WithChannel(ctx, "telegram"), query)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: res.Answer, Confidence: res.Confidence}, nil
}

func (l local) Refresh(ctx context.Context) (int, error) {
	return l.kb.Refresh(ctx)
}

// Remote adapts an RPC connection to the assistant process.
func Remote(c *rpc.Client) Assistant {
	return remote{c: c}
}

type remote struct {
	c *rpc.Client
}

func (r remote) Ask(ctx context.Context, query string) (Answer, error) {
	var resp rpc.AskResponse
	if err := r.c.Call(ctx, rpc.MethodAsk, rpc.AskRequest{Query: query, Channel: "telegram"}, &resp); err != nil {
		return Answer{}, err
	}
	return Answer{Text: resp.Answer, Confidence: resp.Confidence}, nil
}

func (r remote) Refresh(ctx context.Context) (int, error) {
	var resp rpc.RefreshResponse
	if err := r.c.Call(ctx, rpc.MethodRefresh, struct{}{}, &resp); err != nil {
		return 0, err
	}
	return resp.DocumentsProcessed, nil
}
