package crawl

import (
	"context"
	"fmt"
	"time"

	"github.com/sitewatch/sitewatch/internal/store"
)

// RecencyResult answers "was this path discovered recently enough to skip
// recrawling". LastCrawledAt carries the record's creation time whenever the
// record exists, regardless of whether it is still within the window.
type RecencyResult struct {
	Crawled       bool       `json:"crawled"`
	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty"`
}

// RecencyChecker performs the freshness comparison against a configured
// max-age window.
type RecencyChecker struct {
	store  store.Store
	maxAge time.Duration
	now    func() time.Time
}

// NewRecencyChecker constructs a checker. The max-age window must be
// positive.
func NewRecencyChecker(st store.Store, maxAge time.Duration) (*RecencyChecker, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("crawler.recrawl_max_age must be > 0")
	}
	return &RecencyChecker{
		store:  st,
		maxAge: maxAge,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetNow overrides the time source (testing).
func (c *RecencyChecker) SetNow(now func() time.Time) {
	c.now = now
}

// HasCrawledRecently reports whether (site, path) was stored within the
// max-age window. An absent record is not an error; it reports not crawled
// with no timestamp.
func (c *RecencyChecker) HasCrawledRecently(ctx context.Context, site, path string) (RecencyResult, error) {
	rec, ok, err := c.store.GetPath(ctx, site, path)
	if err != nil {
		return RecencyResult{}, fmt.Errorf("look up path record: %w", err)
	}
	if !ok {
		return RecencyResult{}, nil
	}
	createdAt := rec.CreatedAt
	return RecencyResult{
		Crawled:       c.now().Sub(createdAt) <= c.maxAge,
		LastCrawledAt: &createdAt,
	}, nil
}
