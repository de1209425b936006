package cwa

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/forecast-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Fetcher is the upstream call wrapped by CachedFetcher.
type Fetcher interface {
	Fetch(ctx context.Context) (domain.RawForecastResponse, error)
}

// CachedFetcher reuses the last successful payload for ttl so bursts of
// refresh requests cost one upstream call.
type CachedFetcher struct {
	inner Fetcher
	ttl   time.Duration
	clock clockwork.Clock

	mu        sync.Mutex
	payload   domain.RawForecastResponse
	fetchedAt time.Time
	valid     bool
}

// NewCachedFetcher wraps inner. A nil clk uses real time.
func NewCachedFetcher(inner Fetcher, ttl time.Duration, clk clockwork.Clock) *CachedFetcher {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &CachedFetcher{inner: inner, ttl: ttl, clock: clk}
}

// Fetch returns the cached payload while it is fresh, otherwise calls inner.
// Errors are never cached.
func (c *CachedFetcher) Fetch(ctx context.Context) (domain.RawForecastResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.clock.Since(c.fetchedAt) < c.ttl {
		return c.payload, nil
	}
	resp, err := c.inner.Fetch(ctx)
	if err != nil {
		return resp, err
	}
	c.payload = resp
	c.fetchedAt = c.clock.Now()
	c.valid = true
	return resp, nil
}
