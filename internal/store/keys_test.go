package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSiteKeyRoundTrip(t *testing.T) {
	t.Parallel()

	pk := SiteKey("example.com")
	require.Equal(t, "URL#example.com", pk)

	site, ok := SplitSiteKey(pk)
	require.True(t, ok)
	require.Equal(t, "example.com", site)
}

func TestSplitSiteKeyRejectsForeignPrefix(t *testing.T) {
	t.Parallel()

	_, ok := SplitSiteKey("PATH#/about")
	require.False(t, ok)
}

func TestPathSortKeyRoundTrip(t *testing.T) {
	t.Parallel()

	sk := PathSortKey("/news/today")
	require.Equal(t, "PATH#/news/today", sk)

	path, ok := SplitPathSortKey(sk)
	require.True(t, ok)
	require.Equal(t, "/news/today", path)
}

func TestPhraseSortKeyShapes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "PHRASE#/a#term", PhraseSortKey("/a", "term"))
	require.Equal(t, "PHRASE#TOTAL#term", PhraseSortKey(TotalMarker, "term"))
}
