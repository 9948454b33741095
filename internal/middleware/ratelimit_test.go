package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/userdata-registry/internal/config"
	"github.com/iliyamo/userdata-registry/internal/metrics"
)

type limiterFixture struct {
	mr      *miniredis.Miniredis
	tb      *tokenBucket
	metrics *metrics.Metrics
	hook    *logtest.Hook
	e       *echo.Echo
	clock   time.Time
}

func newLimiterFixture(t *testing.T, capacity int, refill time.Duration) *limiterFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	logger, hook := logtest.NewNullLogger()
	f := &limiterFixture{mr: mr, metrics: metrics.New(), hook: hook, clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	f.tb = &tokenBucket{
		cfg: config.RateLimitConfig{
			Enabled:        true,
			Capacity:       capacity,
			RefillInterval: refill,
			TTL:            time.Minute,
			KeyStrategy:    config.RateKeyIPRoute,
			Prefix:         "rl",
		},
		rdb:     rdb,
		metrics: f.metrics,
		log:     logrus.NewEntry(logger),
		now:     func() time.Time { return f.clock },
	}
	f.e = echo.New()
	g := f.e.Group("/userdata", f.tb.middleware)
	g.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	return f
}

func (f *limiterFixture) get() *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/userdata/", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestTokenBucketThrottlesOnceEmpty(t *testing.T) {
	f := newLimiterFixture(t, 2, 30*time.Second)

	rec := f.get()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	rec = f.get()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	f.clock = f.clock.Add(10 * time.Second)
	rec = f.get()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "20", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"detail":"Request was throttled. Expected available in 20 seconds."}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Throttled.WithLabelValues("/userdata/")))

	assert.True(t, f.mr.Exists("rl:ip:10.0.0.1:route:GET /userdata/"))
	assert.Equal(t, time.Minute, f.mr.TTL("rl:ip:10.0.0.1:route:GET /userdata/"))
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	f := newLimiterFixture(t, 1, time.Second)

	require.Equal(t, http.StatusOK, f.get().Code)
	require.Equal(t, http.StatusTooManyRequests, f.get().Code)

	f.clock = f.clock.Add(time.Second)
	require.Equal(t, http.StatusOK, f.get().Code)
	require.Equal(t, http.StatusTooManyRequests, f.get().Code)

	// a long idle period never earns more than the capacity
	f.clock = f.clock.Add(time.Hour)
	require.Equal(t, http.StatusOK, f.get().Code)
	assert.Equal(t, http.StatusTooManyRequests, f.get().Code)
}

func TestTokenBucketFailsOpenOnRedisError(t *testing.T) {
	f := newLimiterFixture(t, 1, time.Minute)
	f.mr.SetError("LOADING server is loading")

	for i := 0; i < 3; i++ {
		rec := f.get()
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
	require.NotNil(t, f.hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, f.hook.LastEntry().Level)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.Throttled.WithLabelValues("/userdata/")))
}

func TestThrottledMessage(t *testing.T) {
	assert.Equal(t, "Request was throttled. Expected available in 1 second.", throttledMessage(retryAfterSeconds(0)))
	assert.Equal(t, "Request was throttled. Expected available in 2 seconds.", throttledMessage(retryAfterSeconds(1001*time.Millisecond)))
	assert.Equal(t, 1, retryAfterSeconds(time.Second))
}
