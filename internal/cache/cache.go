// Package cache holds the last known status per flight occurrence. Entries
// are never expired: a stale entry is valid fallback data indefinitely, and
// staleness is surfaced through CachedAt rather than eviction.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tripkeeper/tripkeeper/internal/docstore"
	"github.com/tripkeeper/tripkeeper/internal/flight"
	"github.com/tripkeeper/tripkeeper/internal/provider"
)

const documentName = "flight_cache.json"

// Entry is one cached flight status plus the instant it was fetched.
type Entry struct {
	provider.FlightStatus
	CachedAt time.Time `json:"cached_at"`
}

// Cache is the durable status store. All mutation happens under the
// scheduler's single mutating lock; the internal mutex only guards direct
// reads from the HTTP layer.
type Cache struct {
	mu      sync.Mutex
	store   docstore.Store
	entries map[string]*Entry
	loaded  bool
	nowFn   func() time.Time
}

func New(store docstore.Store) *Cache {
	return &Cache{store: store, nowFn: time.Now}
}

// Get returns the cached entry for a flight occurrence, or false when the
// flight was never cached.
func (c *Cache) Get(ctx context.Context, flightIata, date string) (*Entry, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoadedLocked(ctx)
	entry, ok := c.entries[flight.CacheKey(flightIata, date)]
	if !ok {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// Put stores a freshly fetched status, fully replacing any prior entry for
// the key, and flushes the whole document. On a persistence error the
// in-memory entry is kept and the error is returned for error-level logging.
func (c *Cache) Put(ctx context.Context, flightIata, date string, status *provider.FlightStatus) (*Entry, error) {
	if c == nil || status == nil {
		return nil, errors.New("cache: nothing to store")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoadedLocked(ctx)

	entry := &Entry{FlightStatus: *status, CachedAt: c.nowFn().UTC()}
	c.entries[flight.CacheKey(flightIata, date)] = entry

	copied := *entry
	if err := c.persistLocked(ctx); err != nil {
		return &copied, err
	}
	return &copied, nil
}

// Len reports the number of cached flight occurrences.
func (c *Cache) Len(ctx context.Context) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoadedLocked(ctx)
	return len(c.entries)
}

func (c *Cache) ensureLoadedLocked(ctx context.Context) {
	if c.loaded {
		return
	}
	c.loaded = true
	c.entries = make(map[string]*Entry)

	raw, err := c.store.Load(ctx, documentName)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			log.WithError(err).Error("cache: loading document failed, starting empty")
		}
		return
	}
	var loaded map[string]*Entry
	if err := json.Unmarshal(raw, &loaded); err != nil {
		log.WithError(err).Error("cache: document malformed, starting empty")
		return
	}
	if loaded != nil {
		c.entries = loaded
	}
}

func (c *Cache) persistLocked(ctx context.Context) error {
	raw, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}
	return c.store.Save(ctx, documentName, raw)
}
