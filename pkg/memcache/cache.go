// Package memcache is the in-process, TTL-keyed cache for live-fetch
// results. It bridges the window before a source's first full sync
// completes, and it never persists across restarts.
package memcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/tonearmapp/tonearm/pkg/config"
)

// Operation kinds, used both as cache key segments and as the index into
// the per-operation TTL table.
const (
	OpListSections = "list_sections"
	OpReadSection  = "read_section"
	OpFacets       = "facets"
)

// opTTLs maps operation kinds to their default TTLs. Section listings and
// facet lists barely change, album pages are more volatile.
var opTTLs = map[string]time.Duration{
	OpListSections: time.Hour,
	OpReadSection:  5 * time.Minute,
	OpFacets:       time.Hour,
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

type Cache struct {
	defaultTTL    time.Duration
	sweepInterval time.Duration
	log           logger.Logger

	mu      sync.RWMutex
	entries map[string]entry

	shutdown chan struct{}
	done     chan struct{}
}

func New(cfg *config.Config) *Cache {
	return &Cache{
		defaultTTL:    cfg.CacheDefaultTTL,
		sweepInterval: cfg.CacheSweepInterval,
		log:           logger.New(),
		entries:       map[string]entry{},
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Key builds the cache key for a scope, operation, and parameter set. The
// parameters are fingerprinted so that any serializable struct can act as
// the key without the caller flattening it by hand.
func Key(scope, op string, params interface{}) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", errors.WithStack(err)
	}
	sum := sha256.Sum256(data)
	return scope + ":" + op + ":" + hex.EncodeToString(sum[:8]), nil
}

// Get unmarshals the cached value for the key into out and reports whether
// there was an unexpired hit. Expired entries are evicted on access.
func (c *Cache) Get(scope, op string, params, out interface{}) bool {
	key, err := Key(scope, op, params)
	if err != nil {
		// A cache failure is a miss, never an error for the caller.
		c.log.Err(err).Warn("cache key error")
		return false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false
	}

	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Recheck under the write lock; a concurrent Set may have renewed it.
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return false
	}

	if err := json.Unmarshal(e.value, out); err != nil {
		c.log.Err(err).Warn("cache decode error")
		return false
	}
	return true
}

// Set stores a value under the operation's default TTL, or under
// ttlOverride when given.
func (c *Cache) Set(scope, op string, params, value interface{}, ttlOverride ...time.Duration) {
	key, err := Key(scope, op, params)
	if err != nil {
		c.log.Err(err).Warn("cache key error")
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.log.Err(err).Warn("cache encode error")
		return
	}

	ttl := c.ttlFor(op)
	if len(ttlOverride) > 0 {
		ttl = ttlOverride[0]
	}

	c.mu.Lock()
	c.entries[key] = entry{value: data, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *Cache) ttlFor(op string) time.Duration {
	if ttl, ok := opTTLs[op]; ok {
		return ttl
	}
	return c.defaultTTL
}

// InvalidateScope removes every entry whose key starts with the scope.
// Called when a source's credentials change, since results fetched under
// the old credentials are no longer trustworthy.
func (c *Cache) InvalidateScope(scope string) int {
	prefix := scope + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartSweeping launches the background goroutine that removes expired
// entries on a fixed interval.
func (c *Cache) StartSweeping() {
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.shutdown:
				c.done <- struct{}{}
				return
			case <-ticker.C:
				removed := c.sweep()
				if removed > 0 {
					c.log.Debug("cache sweep", logger.Data{"removed": removed})
				}
			}
		}
	}()
}

func (c *Cache) sweep() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Shutdown() {
	close(c.shutdown)
	<-c.done
}
