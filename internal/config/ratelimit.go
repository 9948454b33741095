package config

import (
	"strings"
	"time"
)

// Rate limit key strategies.
const (
	RateKeyIP      = "ip"
	RateKeyRoute   = "route"
	RateKeyIPRoute = "ip_route"
)

// RateLimitConfig describes the token bucket guarding the /userdata routes.
// A client may burst Capacity requests and then earns one request back per
// RefillInterval.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillInterval time.Duration
	TTL            time.Duration // idle buckets expire after this
	KeyStrategy    string        // one of the RateKey* constants
	Prefix         string
}

// LoadRateLimitConfig reads the RATE_LIMIT_* variables.  Out of range
// values are clamped and an unknown key strategy falls back to ip_route.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    strings.ToLower(envStr("RATE_LIMIT_KEY_STRATEGY", RateKeyIPRoute)),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "userdata:rl"),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	// an idle bucket must live long enough to be noticeably refilled
	if floor := 5 * cfg.RefillInterval; cfg.TTL < floor {
		cfg.TTL = floor
	}
	switch cfg.KeyStrategy {
	case RateKeyIP, RateKeyRoute, RateKeyIPRoute:
	default:
		cfg.KeyStrategy = RateKeyIPRoute
	}
	return cfg
}
