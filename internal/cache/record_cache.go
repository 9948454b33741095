// Package cache keeps recently looked-up userdata records in Redis so the
// registration lookup does not hit MySQL on every request.
//
// Every registration id has a generation counter next to its entry.  A
// mutation bumps the counter and drops the entry in one transaction; a
// lookup reads the counter before it reads the store and fills the entry
// only if the counter is unchanged.  A lookup that raced a write therefore
// never caches the record as it was before that write.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/userdata-registry/internal/config"
	"github.com/iliyamo/userdata-registry/internal/model"
)

// generationTTL bounds how long a generation counter outlives the last
// mutation of its registration id.  It must exceed any lookup's duration.
const generationTTL = 24 * time.Hour

// fillScript writes ARGV[2] to KEYS[2] only while KEYS[1] still holds the
// generation ARGV[1] seen before the store read.  A missing counter reads
// as the empty string.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or ''
if gen ~= ARGV[1] then
    return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
    redis.call('SET', KEYS[2], ARGV[2], 'PX', ttl)
else
    redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// Generation is the counter value observed before a store read.  The zero
// value never fills.
type Generation struct {
	value string
	ok    bool
}

// RecordCache is a read-through cache for registration lookups.  A nil
// *RecordCache is valid and caches nothing.
type RecordCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	log    *logrus.Entry
}

// NewRecordCache returns nil when caching is disabled or no Redis client
// is available so callers can use the result unconditionally.
func NewRecordCache(cfg config.CacheConfig, rdb *redis.Client, log *logrus.Entry) *RecordCache {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RecordCache{rdb: rdb, ttl: cfg.TTL, prefix: cfg.Prefix, log: log}
}

// keys hashes the registration id so arbitrary client input never ends up
// verbatim in the key space.
func (c *RecordCache) keys(registrationID string) (entry, generation string) {
	sum := sha1.Sum([]byte(registrationID))
	base := fmt.Sprintf("%s:registration:%x", c.prefix, sum[:])
	return base, base + ":gen"
}

// Get returns the cached record for registrationID.  Misses and Redis
// errors both report false; errors are logged.
func (c *RecordCache) Get(ctx context.Context, registrationID string) (*model.UserData, bool) {
	if c == nil {
		return nil, false
	}
	entry, _ := c.keys(registrationID)
	bs, err := c.rdb.Get(ctx, entry).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("cache: get failed")
		}
		return nil, false
	}
	var d model.UserData
	if err := json.Unmarshal(bs, &d); err != nil {
		c.log.WithError(err).Warn("cache: dropping undecodable entry")
		return nil, false
	}
	if d.RegistrationID != registrationID {
		return nil, false
	}
	return &d, true
}

// Generation reads the counter for registrationID.  Call it before reading
// the store and hand the result to Fill.
func (c *RecordCache) Generation(ctx context.Context, registrationID string) Generation {
	if c == nil {
		return Generation{}
	}
	_, gen := c.keys(registrationID)
	v, err := c.rdb.Get(ctx, gen).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return Generation{ok: true}
	case err != nil:
		c.log.WithError(err).Warn("cache: generation read failed")
		return Generation{}
	}
	return Generation{value: v, ok: true}
}

// Fill caches d unless its registration id was mutated since gen was read.
// It reports whether the entry was written.
func (c *RecordCache) Fill(ctx context.Context, gen Generation, d *model.UserData) bool {
	if c == nil || d == nil || !gen.ok {
		return false
	}
	bs, err := json.Marshal(d)
	if err != nil {
		return false
	}
	entry, genKey := c.keys(d.RegistrationID)
	n, err := fillScript.Run(ctx, c.rdb, []string{genKey, entry}, gen.value, bs, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.log.WithError(err).Warn("cache: fill failed")
		return false
	}
	return n == 1
}

// Invalidate drops the entries for every given registration id and bumps
// their generations so in-flight lookups do not repopulate them.
func (c *RecordCache) Invalidate(ctx context.Context, registrationIDs ...string) {
	if c == nil || len(registrationIDs) == 0 {
		return
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range registrationIDs {
			entry, gen := c.keys(id)
			pipe.Incr(ctx, gen)
			pipe.Expire(ctx, gen, generationTTL)
			pipe.Del(ctx, entry)
		}
		return nil
	})
	if err != nil {
		c.log.WithError(err).Warn("cache: invalidate failed")
	}
}
