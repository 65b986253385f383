package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so the visited set deduplicates reliably.
// It lowercases the scheme and host, removes default ports and fragments, and
// sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// StripWWW removes a single leading "www." label from a hostname.
func StripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// SameSite reports whether a link's hostname belongs to the seed's site,
// comparing hostnames with the leading "www." stripped.
func SameSite(linkHost, site string) bool {
	return StripWWW(linkHost) == StripWWW(site)
}

// pagePath is the path component a URL contributes to the store. An empty
// path (bare host) maps to "/".
func pagePath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
