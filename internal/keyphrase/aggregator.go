// Package keyphrase counts phrase occurrences on crawled pages and maintains
// per-page and site-wide rollup rows in the occurrence store.
package keyphrase

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"go.uber.org/zap"

	"github.com/sitewatch/sitewatch/internal/crawl"
	"github.com/sitewatch/sitewatch/internal/metrics"
	"github.com/sitewatch/sitewatch/internal/store"
)

// TextSource returns the extracted plain text of a page. The HTML fetch and
// HTML-to-text conversion live behind this boundary.
type TextSource interface {
	Text(ctx context.Context, url string) (string, error)
}

// Aggregator performs the read-merge-write occurrence counting for a page.
type Aggregator struct {
	occurrences store.OccurrenceStore
	source      TextSource
	logger      *zap.Logger
}

// NewAggregator constructs an Aggregator.
func NewAggregator(occurrences store.OccurrenceStore, source TextSource, logger *zap.Logger) (*Aggregator, error) {
	if occurrences == nil {
		return nil, fmt.Errorf("occurrence store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("text source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{occurrences: occurrences, source: source, logger: logger}, nil
}

// CountOccurrences fetches the page's text and folds the match count of each
// phrase into the stored counts for (site, path, phrase) and the site-wide
// rollup row. An empty phrase set succeeds without touching the text source
// or the store. Phrases with zero matches are not stored.
//
// Counts are merged read-then-write, not incremented atomically: two
// concurrent invocations for the same (site, path, phrase) can interleave and
// lose one update. Callers that need exact counts must serialize invocations
// per page.
func (a *Aggregator) CountOccurrences(ctx context.Context, rawURL string, phrases []string) error {
	if len(phrases) == 0 {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("invalid page url %q", rawURL)
	}
	site := crawl.StripWWW(u.Hostname())
	path := u.Path
	if path == "" {
		path = "/"
	}

	text, err := a.source.Text(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("fetch page text: %w", err)
	}

	matched := 0
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		n := countMatches(text, phrase)
		if n == 0 {
			continue
		}
		if err := a.merge(ctx, site, path, phrase, n); err != nil {
			return err
		}
		if err := a.merge(ctx, site, store.TotalMarker, phrase, n); err != nil {
			return err
		}
		matched += n
	}
	metrics.ObserveKeyphraseMatches(site, matched)

	a.logger.Debug("counted occurrences",
		zap.String("site", site),
		zap.String("path", path),
		zap.Int("phrases", len(phrases)),
		zap.Int("matches", matched),
	)
	return nil
}

// merge folds n new matches into the stored count for one row.
func (a *Aggregator) merge(ctx context.Context, site, path, phrase string, n int) error {
	prior, _, err := a.occurrences.GetOccurrence(ctx, site, path, phrase)
	if err != nil {
		return fmt.Errorf("read occurrence %s %s %q: %w", site, path, phrase, err)
	}
	occ := store.KeyphraseOccurrence{
		Site:   site,
		Path:   path,
		Phrase: phrase,
		Count:  prior.Count + n,
	}
	if err := a.occurrences.PutOccurrence(ctx, occ); err != nil {
		return fmt.Errorf("write occurrence %s %s %q: %w", site, path, phrase, err)
	}
	return nil
}

// countMatches counts case-insensitive whole-word matches of phrase in text.
func countMatches(text, phrase string) int {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
	return len(re.FindAllStringIndex(text, -1))
}
