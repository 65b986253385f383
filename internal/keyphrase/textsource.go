package keyphrase

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/sitewatch/sitewatch/internal/crawl"
)

// PageTextSource fetches a page and flattens its HTML to plain text.
type PageTextSource struct {
	fetcher crawl.Fetcher
}

// NewPageTextSource constructs a PageTextSource on top of a page fetcher.
func NewPageTextSource(fetcher crawl.Fetcher) (*PageTextSource, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	return &PageTextSource{fetcher: fetcher}, nil
}

// Text implements TextSource.
func (s *PageTextSource) Text(ctx context.Context, url string) (string, error) {
	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Text(), nil
}
