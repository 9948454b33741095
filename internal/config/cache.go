package config

import "time"

// CacheConfig defines settings for the registration lookup cache.  When
// Enabled is false or no Redis client is configured, lookups always go to
// the store.  TTL bounds how long a cached record lives even if no mutation
// invalidates it; Prefix namespaces the keys.
type CacheConfig struct {
    Enabled bool
    TTL     time.Duration
    Prefix  string
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
// Defaults are used when variables are not set.
func LoadCacheConfig() CacheConfig {
    cfg := CacheConfig{
        Enabled: envBool("CACHE_ENABLED", true),
        TTL:     envDur("CACHE_TTL", 30*time.Second),
        Prefix:  envStr("CACHE_PREFIX", "userdata"),
    }
    if cfg.TTL <= 0 { cfg.TTL = 30 * time.Second }
    return cfg
}
