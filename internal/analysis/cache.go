package analysis

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// reportCache keeps recent reports by fingerprint. Concurrent misses for the
// same fingerprint share one computation. Cached reports are shared between
// callers and must not be mutated.
type reportCache struct {
	entries *lru.Cache[string, *Report]
	group   singleflight.Group
}

func newReportCache(size int) (*reportCache, error) {
	entries, err := lru.New[string, *Report](size)
	if err != nil {
		return nil, fmt.Errorf("creating report cache: %w", err)
	}
	return &reportCache{entries: entries}, nil
}

// get returns the cached report for key or computes it once. hit reports
// whether no computation was needed.
func (c *reportCache) get(key string, compute func() (*Report, error)) (rep *Report, hit bool, err error) {
	if cached, ok := c.entries.Get(key); ok {
		return cached, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Double-check inside the flight.
		if cached, ok := c.entries.Get(key); ok {
			return cached, nil
		}
		rep, err := compute()
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, rep)
		return rep, nil
	})
	if err != nil {
		return nil, false, err
	}

	rep, ok := v.(*Report)
	if !ok {
		return nil, false, fmt.Errorf("unexpected type from report cache: got %T", v)
	}
	return rep, false, nil
}

func (c *reportCache) len() int {
	return c.entries.Len()
}
