package crawl

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLinksResolvesAndFilters(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.com/docs/")
	require.NoError(t, err)

	body := []byte(`<html><body>
		<a href="page.html">relative</a>
		<a href="/root.html">absolute path</a>
		<a href="https://other.com/x">external</a>
		<a href="mailto:hi@example.com">mail</a>
		<a href="javascript:void(0)">script</a>
		<a href="#top">fragment only</a>
		<a href="">empty</a>
		<a>no href</a>
	</body></html>`)

	links, err := ExtractLinks(body, base)
	require.NoError(t, err)

	got := make([]string, 0, len(links))
	for _, l := range links {
		got = append(got, l.String())
	}
	require.Equal(t, []string{
		"https://example.com/docs/page.html",
		"https://example.com/root.html",
		"https://other.com/x",
		"https://example.com/docs/",
	}, got)
}

func TestExtractLinksEmptyBody(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.com/")
	require.NoError(t, err)
	links, err := ExtractLinks(nil, base)
	require.NoError(t, err)
	require.Empty(t, links)
}
