package ephemeral

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

// backends runs the same contract against both implementations. advance
// moves each backend's notion of time forward.
func backends(t *testing.T) map[string]struct {
	store   Store
	advance func(time.Duration)
} {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	return map[string]struct {
		store   Store
		advance func(time.Duration)
	}{
		"redis":  {store: NewRedisStore(rdb), advance: mr.FastForward},
		"memory": {store: NewMemoryStore(clk.now), advance: func(d time.Duration) { clk.t = clk.t.Add(d) }},
	}
}

func TestStoreContract(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := b.store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.store.Set(ctx, "k", "v1", time.Minute))
			v, err := b.store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v1", v)

			require.NoError(t, b.store.Delete(ctx, "k"))
			_, err = b.store.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.store.Delete(ctx, "never-set"))
		})
	}
}

func TestStoreIndependentTTLs(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, b.store.Set(ctx, "short", "1", 10*time.Second))
			require.NoError(t, b.store.Set(ctx, "long", "2", time.Minute))

			b.advance(11 * time.Second)

			ok, err := Exists(ctx, b.store, "short")
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = Exists(ctx, b.store, "long")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestReplaceKeepsSingleValue(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, Replace(ctx, b.store, "code", "111111", time.Minute))
			require.NoError(t, Replace(ctx, b.store, "code", "222222", time.Minute))

			v, err := b.store.Get(ctx, "code")
			require.NoError(t, err)
			assert.Equal(t, "222222", v)
		})
	}
}

func TestSetRejectsNonPositiveTTL(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, b.store.Set(context.Background(), "k", "v", 0))
		})
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	s := NewMemoryStore(clk.now)
	require.NoError(t, s.Set(context.Background(), "k", "v", 30*time.Second))

	clk.t = clk.t.Add(10 * time.Second)
	assert.Equal(t, 20*time.Second, s.TTL("k"))
	assert.Zero(t, s.TTL("absent"))
}
