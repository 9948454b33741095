package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/userdata-registry/internal/config"
	"github.com/iliyamo/userdata-registry/internal/metrics"
)

// takeScript refills the bucket in KEYS[1] for the time elapsed since its
// stamp and takes one token.  ARGV: now_ms, capacity, interval_ms, ttl_ms.
// Returns {allowed, tokens_left, wait_ms}.
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'stamp')
local tokens = tonumber(state[1]) or capacity
local stamp = tonumber(state[2]) or now

local earned = math.floor(math.max(0, now - stamp) / interval)
if earned > 0 then
    tokens = math.min(capacity, tokens + earned)
    stamp = stamp + earned * interval
end
if tokens >= capacity then
    stamp = now
end

local allowed, wait = 0, 0
if tokens > 0 then
    allowed = 1
    tokens = tokens - 1
else
    wait = math.max(0, interval - (now - stamp))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'stamp', stamp)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {allowed, tokens, wait}
`)

type tokenBucket struct {
	cfg     config.RateLimitConfig
	rdb     redis.Scripter
	metrics *metrics.Metrics
	log     *logrus.Entry
	now     func() time.Time
}

// NewTokenBucket limits requests with a token bucket kept in Redis so every
// replica shares one budget.  Rejected requests get 429 with Retry-After
// and are counted in m.  Redis failures let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, m *metrics.Metrics, log *logrus.Entry) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	tb := &tokenBucket{cfg: cfg, rdb: rdb, metrics: m, log: log, now: time.Now}
	return tb.middleware
}

func (tb *tokenBucket) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := buildRateKey(tb.cfg, c)
		allowed, remaining, wait, err := tb.take(c.Request().Context(), key)
		if err != nil {
			tb.log.WithError(err).WithField("key", key).Warn("ratelimit: redis error, allowing request")
			return next(c)
		}

		h := c.Response().Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(tb.cfg.Capacity))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if allowed {
			return next(c)
		}

		secs := retryAfterSeconds(wait)
		h.Set("Retry-After", strconv.Itoa(secs))
		tb.metrics.IncrementThrottled(c.Path())
		tb.log.WithFields(logrus.Fields{"key": key, "retry_after": secs}).Debug("ratelimit: throttled")
		return c.JSON(http.StatusTooManyRequests, map[string]string{"detail": throttledMessage(secs)})
	}
}

func (tb *tokenBucket) take(ctx context.Context, key string) (allowed bool, remaining int64, wait time.Duration, err error) {
	vals, err := takeScript.Run(ctx, tb.rdb, []string{key},
		tb.now().UnixMilli(),
		tb.cfg.Capacity,
		tb.cfg.RefillInterval.Milliseconds(),
		tb.cfg.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, 0, err
	}
	if len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("ratelimit: unexpected script result %v", vals)
	}
	return vals[0] == 1, vals[1], time.Duration(vals[2]) * time.Millisecond, nil
}

// retryAfterSeconds rounds wait up to whole seconds, never below one.
func retryAfterSeconds(wait time.Duration) int {
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func throttledMessage(secs int) string {
	unit := "seconds"
	if secs == 1 {
		unit = "second"
	}
	return fmt.Sprintf("Request was throttled. Expected available in %d %s.", secs, unit)
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch cfg.KeyStrategy {
	case config.RateKeyIP:
		parts = append(parts, "ip", ip)
	case config.RateKeyRoute:
		parts = append(parts, "route", route)
	default:
		parts = append(parts, "ip", ip, "route", route)
	}
	return strings.Join(parts, ":")
}
