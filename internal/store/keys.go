package store

import "strings"

// Key prefixes and sentinels for the composite key scheme. Path and status
// rows for one site share the same partition so range queries stay in a
// single partition.
const (
	SitePrefix    = "URL#"
	PathPrefix    = "PATH#"
	PhrasePrefix  = "PHRASE#"
	StatusSortKey = "STATUS"
)

// SiteKey builds the partition key for a site.
func SiteKey(site string) string {
	return SitePrefix + site
}

// PathSortKey builds the sort key for a discovered path.
func PathSortKey(path string) string {
	return PathPrefix + path
}

// PhraseSortKey builds the sort key for a keyphrase occurrence row. Rollup
// rows use TotalMarker in place of a page path.
func PhraseSortKey(path, phrase string) string {
	return PhrasePrefix + path + "#" + phrase
}

// SplitSiteKey extracts the site from a partition key. The second return is
// false when the key does not carry the site prefix.
func SplitSiteKey(pk string) (string, bool) {
	if !strings.HasPrefix(pk, SitePrefix) {
		return "", false
	}
	return strings.TrimPrefix(pk, SitePrefix), true
}

// SplitPathSortKey extracts the path from a path sort key.
func SplitPathSortKey(sk string) (string, bool) {
	if !strings.HasPrefix(sk, PathPrefix) {
		return "", false
	}
	return strings.TrimPrefix(sk, PathPrefix), true
}
