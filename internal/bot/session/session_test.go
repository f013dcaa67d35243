package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/redis"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryTouchCreatesAndCounts(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	m := NewMemory(30*time.Minute, 2)
	m.now = clk.now

	s, err := m.Touch(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Messages)
	assert.Equal(t, clk.t, s.CreatedAt)

	clk.advance(time.Minute)
	s, _ = m.Touch(ctx, 7)
	assert.Equal(t, 2, s.Messages)
	assert.Equal(t, clk.t, s.LastActivity)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.AddTurn(ctx, 7, Turn{Question: string(rune('a' + i))}))
	}
	got, ok, err := m.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, "b", got.Turns[0].Question)
	assert.Equal(t, "c", got.Turns[1].Question)
}

func TestMemoryIdleEviction(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	m := NewMemory(30*time.Minute, 5)
	m.now = clk.now

	_, _ = m.Touch(ctx, 1)
	clk.advance(20 * time.Minute)
	_, _ = m.Touch(ctx, 2)
	clk.advance(15 * time.Minute)

	_, ok, _ := m.Get(ctx, 1)
	assert.False(t, ok)

	assert.Equal(t, 1, m.evict())
	assert.Equal(t, 1, m.Len())

	s, _ := m.Touch(ctx, 2)
	assert.Equal(t, 2, s.Messages)
}

func TestMemoryRestartsExpiredSession(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	m := NewMemory(time.Minute, 5)
	m.now = clk.now

	_, _ = m.Touch(ctx, 1)
	_, _ = m.Touch(ctx, 1)
	clk.advance(2 * time.Minute)

	s, _ := m.Touch(ctx, 1)
	assert.Equal(t, 1, s.Messages)
}

func TestRedisSessionExpires(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedis(client, 30*time.Minute, 3)

	s, err := r.Touch(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Messages)

	require.NoError(t, r.AddTurn(ctx, 99, Turn{Question: "q", Answer: "a", Confidence: 0.7}))
	s, err = r.Touch(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Messages)
	require.Len(t, s.Turns, 1)
	assert.Equal(t, 0.7, s.Turns[0].Confidence)
	assert.True(t, mr.Exists("session:99"))

	mr.FastForward(31 * time.Minute)
	_, ok, err := r.Get(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisAddTurnWithoutSessionIsNoop(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedis(client, time.Minute, 3)
	require.NoError(t, r.AddTurn(context.Background(), 5, Turn{Question: "q"}))
	assert.False(t, mr.Exists("session:5"))
}
