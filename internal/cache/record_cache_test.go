package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/userdata-registry/internal/config"
	"github.com/iliyamo/userdata-registry/internal/model"
)

func newTestCache(t *testing.T) (*RecordCache, *miniredis.Miniredis, *logtest.Hook) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	logger, hook := logtest.NewNullLogger()
	c := NewRecordCache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "userdata"}, rdb, logrus.NewEntry(logger))
	require.NotNil(t, c)
	return c, mr, hook
}

func record() *model.UserData {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &model.UserData{
		ID: 1, RegistrationID: "TX-001", Type: "taco", Name: "Al's Tacos",
		Email: "al@example.com", Phone: "555-0100", CreatedAt: ts, UpdatedAt: ts,
	}
}

func TestNewRecordCacheDisabled(t *testing.T) {
	assert.Nil(t, NewRecordCache(config.CacheConfig{Enabled: false}, redis.NewClient(&redis.Options{}), nil))
	assert.Nil(t, NewRecordCache(config.CacheConfig{Enabled: true}, nil, nil))
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *RecordCache
	ctx := context.Background()
	assert.False(t, c.Fill(ctx, c.Generation(ctx, "TX-001"), record()))
	c.Invalidate(ctx, "TX-001")
	_, ok := c.Get(ctx, "TX-001")
	assert.False(t, ok)
}

func TestFillGetInvalidate(t *testing.T) {
	c, mr, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "TX-001")
	require.False(t, ok)

	require.True(t, c.Fill(ctx, c.Generation(ctx, "TX-001"), record()))
	entry, gen := c.keys("TX-001")
	assert.Equal(t, time.Minute, mr.TTL(entry))

	got, ok := c.Get(ctx, "TX-001")
	require.True(t, ok)
	assert.Equal(t, record().Full(), got.Full())

	c.Invalidate(ctx, "TX-001", "never-cached")
	_, ok = c.Get(ctx, "TX-001")
	assert.False(t, ok)
	v, err := mr.Get(gen)
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.Equal(t, generationTTL, mr.TTL(gen))
}

func TestFillSkippedAfterConcurrentInvalidate(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	gen := c.Generation(ctx, "TX-001")
	// a write lands between the lookup's store read and its fill
	c.Invalidate(ctx, "TX-001")

	assert.False(t, c.Fill(ctx, gen, record()))
	_, ok := c.Get(ctx, "TX-001")
	assert.False(t, ok)

	// the next lookup sees the new generation and may fill again
	assert.True(t, c.Fill(ctx, c.Generation(ctx, "TX-001"), record()))
	_, ok = c.Get(ctx, "TX-001")
	assert.True(t, ok)
}

func TestKeysAreCaseSensitiveAndPrefixed(t *testing.T) {
	c, _, _ := newTestCache(t)
	upper, _ := c.keys("ABC123")
	lower, _ := c.keys("abc123")
	assert.NotEqual(t, upper, lower)
	assert.Contains(t, upper, "userdata:registration:")
}

func TestGetIgnoresMismatchedEntry(t *testing.T) {
	c, mr, _ := newTestCache(t)
	ctx := context.Background()

	require.True(t, c.Fill(ctx, c.Generation(ctx, "TX-001"), record()))
	src, _ := c.keys("TX-001")
	dst, _ := c.keys("OTHER")
	v, err := mr.Get(src)
	require.NoError(t, err)
	require.NoError(t, mr.Set(dst, v))

	_, ok := c.Get(ctx, "OTHER")
	assert.False(t, ok)
}

func TestRedisErrorsAreLoggedAndNeverFill(t *testing.T) {
	c, mr, hook := newTestCache(t)
	ctx := context.Background()
	mr.SetError("LOADING server is loading")

	_, ok := c.Get(ctx, "TX-001")
	assert.False(t, ok)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	gen := c.Generation(ctx, "TX-001")
	mr.SetError("")
	assert.False(t, c.Fill(ctx, gen, record()))
}
