// Package crawl implements the frontier-bounded breadth-first crawl that
// feeds the path/status store.
package crawl

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/sitewatch/sitewatch/internal/blob"
	"github.com/sitewatch/sitewatch/internal/metrics"
	"github.com/sitewatch/sitewatch/internal/store"
)

// Fetcher retrieves a page body. Implementations are expected to honor the
// context deadline.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config bounds every crawl job run by a Controller.
type Config struct {
	// MaxDepth is the global depth ceiling; caller-requested depths above it
	// are silently clamped.
	MaxDepth int
	// MaxRequestsPerCrawl is the fetch budget granted per seed URL.
	MaxRequestsPerCrawl int
}

// Validate refuses configurations the controller cannot run with.
func (c Config) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.MaxRequestsPerCrawl <= 0 {
		return fmt.Errorf("crawler.max_requests_per_crawl must be > 0")
	}
	return nil
}

// Request is one crawl job submission.
type Request struct {
	Seeds    []string
	MaxDepth int
}

// Controller runs the bounded BFS traversal: status STARTED, visit pages,
// upsert discovered paths, status COMPLETE.
type Controller struct {
	store   store.Store
	fetcher Fetcher
	archive blob.Archive
	cfg     Config
	logger  *zap.Logger
}

// NewController constructs a Controller. The archive may be nil when page
// snapshots are not wanted.
func NewController(st store.Store, fetcher Fetcher, archive blob.Archive, cfg Config, logger *zap.Logger) (*Controller, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if archive == nil {
		archive = &blob.NoOpArchive{}
	}
	return &Controller{
		store:   st,
		fetcher: fetcher,
		archive: archive,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Run executes one crawl job. The target depth is min(requested, configured
// max); the job-wide fetch budget is MaxRequestsPerCrawl × number of seeds.
// Every visited page, the seed at depth 0 included, is stored exactly once.
func (c *Controller) Run(ctx context.Context, req Request) error {
	if len(req.Seeds) == 0 {
		return fmt.Errorf("at least one seed url is required")
	}
	target := req.MaxDepth
	if target < 0 {
		target = 0
	}
	if target > c.cfg.MaxDepth {
		target = c.cfg.MaxDepth
	}
	budget := c.cfg.MaxRequestsPerCrawl * len(req.Seeds)

	f := newFrontier()
	sites := make(map[string]struct{})
	for _, seed := range req.Seeds {
		u, err := url.Parse(seed)
		if err != nil || u.Hostname() == "" {
			metrics.ObserveCrawlJob("rejected")
			return fmt.Errorf("invalid seed url %q", seed)
		}
		site := StripWWW(u.Hostname())
		sites[site] = struct{}{}
		f.push(frontierItem{url: u, site: site, depth: 0, target: target})
	}

	for site := range sites {
		if err := c.store.SetStatus(ctx, site, store.StatusStarted); err != nil {
			metrics.ObserveCrawlJob("failed")
			return fmt.Errorf("mark crawl started: %w", err)
		}
	}

	for !f.empty() {
		if err := ctx.Err(); err != nil {
			metrics.ObserveCrawlJob("canceled")
			return fmt.Errorf("crawl canceled: %w", err)
		}
		item, _ := f.pop()
		if err := c.visit(ctx, item, f, &budget); err != nil {
			metrics.ObserveCrawlJob("failed")
			return err
		}
	}

	for site := range sites {
		if err := c.store.SetStatus(ctx, site, store.StatusComplete); err != nil {
			metrics.ObserveCrawlJob("failed")
			return fmt.Errorf("mark crawl complete: %w", err)
		}
	}
	metrics.ObserveCrawlJob("complete")
	return nil
}

// visit stores the page's path, then fetches and expands it while the depth
// and budget bounds allow. Fetch failures are logged and do not error the
// job; store failures do.
func (c *Controller) visit(ctx context.Context, item frontierItem, f *frontier, budget *int) error {
	path := pagePath(item.url)
	if err := c.store.UpsertPath(ctx, item.site, path); err != nil {
		return fmt.Errorf("upsert path %s%s: %w", item.site, path, err)
	}

	if item.depth >= item.target || *budget <= 0 {
		return nil
	}
	*budget--

	body, err := c.fetcher.Fetch(ctx, item.url.String())
	if err != nil {
		metrics.ObserveCrawlPage(item.site, "fetch_error")
		c.logger.Warn("fetch failed",
			zap.String("url", item.url.String()),
			zap.Int("depth", item.depth),
			zap.Error(err),
		)
		return nil
	}
	metrics.ObserveCrawlPage(item.site, "fetched")
	c.archivePage(ctx, item, body)

	links, err := ExtractLinks(body, item.url)
	if err != nil {
		c.logger.Warn("link extraction failed", zap.String("url", item.url.String()), zap.Error(err))
		return nil
	}
	for _, link := range links {
		// Off-domain and self-referential links are dropped, never an error.
		if !SameSite(link.Hostname(), item.site) {
			continue
		}
		f.push(frontierItem{
			url:    link,
			site:   item.site,
			depth:  item.depth + 1,
			target: item.target,
		})
	}
	return nil
}

// archivePage snapshots the fetched body; archive failures are non-fatal.
func (c *Controller) archivePage(ctx context.Context, item frontierItem, body []byte) {
	objectName := fmt.Sprintf("pages/%s/%x.html", item.site, sha256.Sum256([]byte(item.url.String())))
	if err := c.archive.Save(ctx, objectName, body); err != nil {
		c.logger.Warn("archive page failed", zap.String("object", objectName), zap.Error(err))
	}
}
