package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

// StationCache holds the station registry in memory. It is refreshed by the
// poll loop and read concurrently by the HTTP API.
type StationCache struct {
	source StationSource
	clock  clockwork.Clock
	maxAge time.Duration

	mu       sync.RWMutex
	stations map[domain.StationKey]domain.Station
	loadedAt time.Time
}

// NewStationCache creates an empty cache that reloads from source once its
// contents are older than maxAge.
func NewStationCache(source StationSource, maxAge time.Duration, clock clockwork.Clock) *StationCache {
	return &StationCache{
		source:   source,
		clock:    clock,
		maxAge:   maxAge,
		stations: make(map[domain.StationKey]domain.Station),
	}
}

// Refresh replaces the cached registry with the current contents of the source.
// On error the previous contents are kept.
func (c *StationCache) Refresh(ctx context.Context) error {
	list, err := c.source.FetchStations(ctx)
	if err != nil {
		return fmt.Errorf("fetch stations: %w", err)
	}

	next := make(map[domain.StationKey]domain.Station, len(list))
	for _, s := range list {
		next[s.Key()] = s
	}

	c.mu.Lock()
	c.stations = next
	c.loadedAt = c.clock.Now()
	c.mu.Unlock()
	return nil
}

// Stale reports whether the cache has never been loaded or is older than its
// maximum age.
func (c *StationCache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt.IsZero() || c.clock.Since(c.loadedAt) >= c.maxAge
}

// Lookup returns the station with the given key.
func (c *StationCache) Lookup(key domain.StationKey) (domain.Station, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stations[key]
	return s, ok
}

// Len returns the number of cached stations.
func (c *StationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stations)
}

// List returns the cached stations ordered by key.
func (c *StationCache) List() []domain.Station {
	c.mu.RLock()
	out := make([]domain.Station, 0, len(c.stations))
	for _, s := range c.stations {
		out = append(out, s)
	}
	c.mu.RUnlock()

	sortStations(out)
	return out
}

// LoadedAt returns when the cache was last refreshed.
func (c *StationCache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

func sortStations(s []domain.Station) {
	sort.Slice(s, func(i, j int) bool { return s[i].Key().Less(s[j].Key()) })
}
