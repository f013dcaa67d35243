package cache

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

func newTestCache(t *testing.T) (*AnswerCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return New(client, time.Minute, nil), mr
}

func TestSetThenGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "Who issues an AOC?")
	assert.False(t, ok)

	c.Set(ctx, "Who issues an AOC?", Answer{Answer: "The Authority.", Confidence: 0.7, Sources: []string{"Air Operators.pdf"}})

	got, ok := c.Get(ctx, "  who issues   an AOC? ")
	require.True(t, ok)
	assert.Equal(t, "The Authority.", got.Answer)
	assert.Equal(t, 0.7, got.Confidence)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
	assert.Equal(t, int64(1), stats.Entries)
}

func TestEntriesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "q", Answer{Answer: "a"})
	mr.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, "q")
	assert.False(t, ok)
}

func TestInvalidateLeavesOtherKeys(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "one", Answer{Answer: "1"})
	c.Set(ctx, "two", Answer{Answer: "2"})
	require.NoError(t, mr.Set("session:42", "x"))

	n, err := c.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.Exists("session:42"))

	_, ok := c.Get(ctx, "one")
	assert.False(t, ok)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set(Key("q"), "{not json"))

	_, ok := c.Get(context.Background(), "q")
	assert.False(t, ok)
}

func TestKeyNormalizes(t *testing.T) {
	assert.Equal(t, Key("What is Part 121?"), Key("what IS  part 121?"))
	assert.NotEqual(t, Key("part 121"), Key("part 135"))
}
