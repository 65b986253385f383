package crawl

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks pulls every anchor href out of the page body and resolves it
// against the base URL. Only http(s) links survive; malformed hrefs are
// dropped silently.
func ExtractLinks(body []byte, base *url.URL) ([]*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""
		links = append(links, resolved)
	})
	return links, nil
}
