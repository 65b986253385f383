// Package changefeed republishes store mutations as domain URL events on the
// outbound bus.
package changefeed

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sitewatch/sitewatch/internal/bus"
	"github.com/sitewatch/sitewatch/internal/changelog"
	"github.com/sitewatch/sitewatch/internal/metrics"
	"github.com/sitewatch/sitewatch/internal/store"
)

// Adapter validates change records and publishes the valid ones as one batch.
// It implements changelog.Consumer: records it returns are redelivered.
type Adapter struct {
	publisher bus.Publisher
	logger    *zap.Logger
	scheme    string
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithScheme overrides the URL scheme used when rebuilding domain URLs
// (default "https").
func WithScheme(scheme string) Option {
	return func(a *Adapter) { a.scheme = scheme }
}

// New constructs an Adapter.
func New(publisher bus.Publisher, logger *zap.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		publisher: publisher,
		logger:    logger,
		scheme:    "https",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Consume validates each record, skips (and logs) the structurally invalid
// ones, and publishes every valid record's URL in a single bus call. URLs the
// bus rejects map back to their records and only those are reported failed;
// if the publish call itself fails, every valid record is reported failed.
func (a *Adapter) Consume(ctx context.Context, batch []changelog.Record) []changelog.Record {
	valid := make([]changelog.Record, 0, len(batch))
	urls := make([]string, 0, len(batch))
	skipped := 0
	for _, rec := range batch {
		url, err := a.domainURL(rec)
		if err != nil {
			skipped++
			a.logger.Warn("skipping invalid change record",
				zap.String("partition_key", rec.PartitionKey),
				zap.String("sort_key", rec.SortKey),
				zap.Error(err),
			)
			continue
		}
		valid = append(valid, rec)
		urls = append(urls, url)
	}
	metrics.ObserveChangefeed("skipped", skipped)

	if len(valid) == 0 {
		return nil
	}

	rejected, err := a.publisher.Publish(ctx, urls)
	if err != nil {
		// The whole batch failed; redeliver every valid record rather than
		// guessing which messages got through.
		a.logger.Error("bus publish failed", zap.Int("records", len(valid)), zap.Error(err))
		metrics.ObserveChangefeed("rejected", len(valid))
		return valid
	}

	if len(rejected) == 0 {
		metrics.ObserveChangefeed("published", len(valid))
		return nil
	}

	rejectedSet := make(map[string]struct{}, len(rejected))
	for _, url := range rejected {
		rejectedSet[url] = struct{}{}
	}
	var failed []changelog.Record
	for i, rec := range valid {
		if _, ok := rejectedSet[urls[i]]; ok {
			failed = append(failed, rec)
		}
	}
	metrics.ObserveChangefeed("published", len(valid)-len(failed))
	metrics.ObserveChangefeed("rejected", len(failed))
	return failed
}

// domainURL rebuilds the discovered page URL from a record's key attributes.
// The record must carry a site partition key and a path sort key; a site
// token that parses as a pure number or a path without a leading slash marks
// the record malformed.
func (a *Adapter) domainURL(rec changelog.Record) (string, error) {
	site, ok := store.SplitSiteKey(rec.PartitionKey)
	if !ok {
		return "", fmt.Errorf("partition key %q lacks site prefix", rec.PartitionKey)
	}
	if site == "" {
		return "", fmt.Errorf("partition key %q carries an empty site", rec.PartitionKey)
	}
	if _, err := strconv.ParseFloat(site, 64); err == nil {
		return "", fmt.Errorf("site token %q parses as a number", site)
	}
	path, ok := store.SplitPathSortKey(rec.SortKey)
	if !ok {
		return "", fmt.Errorf("sort key %q lacks path prefix", rec.SortKey)
	}
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("path %q does not begin with /", path)
	}
	return a.scheme + "://" + site + path, nil
}
