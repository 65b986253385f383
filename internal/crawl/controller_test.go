package crawl

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitewatch/sitewatch/internal/blob"
	"github.com/sitewatch/sitewatch/internal/store"
	"github.com/sitewatch/sitewatch/internal/store/memory"
)

// fakeFetcher serves a canned site graph and records every fetched URL.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	page, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return []byte(page), nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

func anchors(hrefs ...string) string {
	page := "<html><body>"
	for _, href := range hrefs {
		page += fmt.Sprintf(`<a href=%q>link</a>`, href)
	}
	return page + "</body></html>"
}

func newController(t *testing.T, st store.Store, fetcher Fetcher, cfg Config) *Controller {
	t.Helper()
	c, err := NewController(st, fetcher, blob.NewMemoryArchive(), cfg, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestRunStoresSeedAndSetsStatusLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/": anchors(),
	}}
	c := newController(t, st, fetcher, Config{MaxDepth: 3, MaxRequestsPerCrawl: 10})

	require.NoError(t, c.Run(ctx, Request{Seeds: []string{"https://example.com/"}, MaxDepth: 2}))

	status, ok, err := st.GetStatus(ctx, "example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, store.StatusComplete, status)

	paths, err := st.ListPaths(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Equal(t, "/", paths[0].Path)
}

func TestRunDepthZeroStoresSeedWithoutFetching(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]string{}}
	c := newController(t, st, fetcher, Config{MaxDepth: 3, MaxRequestsPerCrawl: 10})

	require.NoError(t, c.Run(ctx, Request{Seeds: []string{"https://example.com/start"}, MaxDepth: 0}))

	require.Zero(t, fetcher.fetchCount())
	paths, err := st.ListPaths(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Equal(t, "/start", paths[0].Path)
}

func TestRunClampsRequestedDepthToConfiguredMax(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/": anchors("/level1"),
		"https://example.com/level1": anchors("/level2"),
		"https://example.com/level2": anchors("/level3"),
	}}
	c := newController(t, st, fetcher, Config{MaxDepth: 1, MaxRequestsPerCrawl: 100})

	// Requested depth 5 is silently clamped to 1: only the seed is fetched.
	require.NoError(t, c.Run(ctx, Request{Seeds: []string{"https://example.com/"}, MaxDepth: 5}))

	require.Equal(t, 1, fetcher.fetchCount())
	paths, err := st.ListPaths(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, paths, 2) // seed plus the discovered level1 page
}

func TestRunHonorsRequestBudget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.NewStore()
	pages := map[string]string{"https://example.com/": anchors("/p0", "/p1", "/p2", "/p3", "/p4")}
	for i := 0; i < 5; i++ {
		pages[fmt.Sprintf("https://example.com/p%d", i)] = anchors()
	}
	fetcher := &fakeFetcher{pages: pages}
	c := newController(t, st, fetcher, Config{MaxDepth: 5, MaxRequestsPerCrawl: 3})

	require.NoError(t, c.Run(ctx, Request{Seeds: []string{"https://example.com/"}, MaxDepth: 5}))

	// One seed with a per-crawl budget of 3: at most 3 fetches.
	require.LessOrEqual(t, fetcher.fetchCount(), 3)

	// The budget bounds fetches, not discovery: every enqueued page is stored.
	paths, err := st.ListPaths(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, paths, 6)
}

func TestRunScopesCrawlToSeedDomain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/": anchors(
			"/inside",
			"https://www.example.com/www-inside",
			"https://other.com/outside",
			"mailto:team@example.com",
		),
	}}
	c := newController(t, st, fetcher, Config{MaxDepth: 2, MaxRequestsPerCrawl: 10})

	require.NoError(t, c.Run(ctx, Request{Seeds: []string{"https://example.com/"}, MaxDepth: 2}))

	paths, err := st.ListPaths(ctx, "example.com")
	require.NoError(t, err)
	got := make([]string, 0, len(paths))
	for _, rec := range paths {
		require.Equal(t, "example.com", rec.Site)
		got = append(got, rec.Path)
	}
	require.ElementsMatch(t, []string{"/", "/inside", "/www-inside"}, got)

	other, err := st.ListPaths(ctx, "other.com")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestRunVisitsCyclicGraphOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/": anchors("/a", "/"),
		"https://example.com/a": anchors("/", "/a", "/b"),
		"https://example.com/b": anchors("/a"),
	}}
	c := newController(t, st, fetcher, Config{MaxDepth: 10, MaxRequestsPerCrawl: 100})

	require.NoError(t, c.Run(ctx, Request{Seeds: []string{"https://example.com/"}, MaxDepth: 10}))

	// Cycles terminate: each page fetched at most once.
	require.Equal(t, 3, fetcher.fetchCount())
	paths, err := st.ListPaths(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, paths, 3)
}

func TestRunFetchFailureDoesNotErrorTheJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/": anchors("/broken", "/ok"),
		"https://example.com/ok": anchors(),
		// /broken has no page: the fetch errors.
	}}
	c := newController(t, st, fetcher, Config{MaxDepth: 2, MaxRequestsPerCrawl: 10})

	require.NoError(t, c.Run(ctx, Request{Seeds: []string{"https://example.com/"}, MaxDepth: 2}))

	status, ok, err := st.GetStatus(ctx, "example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, store.StatusComplete, status)

	paths, err := st.ListPaths(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, paths, 3)
}

func TestRunMultipleSeedsMultiplyTheBudget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.com/": anchors(),
		"https://b.com/": anchors(),
	}}
	c := newController(t, st, fetcher, Config{MaxDepth: 2, MaxRequestsPerCrawl: 1})

	require.NoError(t, c.Run(ctx, Request{
		Seeds:    []string{"https://a.com/", "https://b.com/"},
		MaxDepth: 1,
	}))

	require.Equal(t, 2, fetcher.fetchCount())
	for _, site := range []string{"a.com", "b.com"} {
		status, ok, err := st.GetStatus(ctx, site)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, store.StatusComplete, status)
	}
}

func TestRunRejectsMalformedSeed(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	c := newController(t, st, &fakeFetcher{}, Config{MaxDepth: 2, MaxRequestsPerCrawl: 10})

	require.Error(t, c.Run(context.Background(), Request{Seeds: []string{"not a url"}, MaxDepth: 1}))
}

func TestNewControllerValidatesConfig(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	_, err := NewController(st, &fakeFetcher{}, nil, Config{MaxDepth: -1, MaxRequestsPerCrawl: 1}, nil)
	require.Error(t, err)

	_, err = NewController(st, &fakeFetcher{}, nil, Config{MaxDepth: 1, MaxRequestsPerCrawl: 0}, nil)
	require.Error(t, err)

	_, err = NewController(nil, &fakeFetcher{}, nil, Config{MaxDepth: 1, MaxRequestsPerCrawl: 1}, nil)
	require.Error(t, err)
}
