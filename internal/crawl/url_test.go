package crawl

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"strips default http port", "http://example.com:80/a", "http://example.com/a"},
		{"strips default https port", "https://example.com:443/a", "https://example.com/a"},
		{"keeps custom port", "http://example.com:8080/a", "http://example.com:8080/a"},
		{"drops fragment", "https://example.com/a#section", "https://example.com/a"},
		{"sorts query parameters", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	require.True(t, SameSite("example.com", "example.com"))
	require.True(t, SameSite("www.example.com", "example.com"))
	require.True(t, SameSite("WWW.Example.com", "example.com"))
	require.False(t, SameSite("blog.example.com", "example.com"))
	require.False(t, SameSite("other.com", "example.com"))
}

func TestStripWWW(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", StripWWW("www.example.com"))
	require.Equal(t, "example.com", StripWWW("example.com"))
	// Only a single leading label is stripped.
	require.Equal(t, "www.example.com", StripWWW("www.www.example.com"))
}

func TestPagePath(t *testing.T) {
	t.Parallel()

	bare, err := url.Parse("https://example.com")
	require.NoError(t, err)
	require.Equal(t, "/", pagePath(bare))

	deep, err := url.Parse("https://example.com/a/b?q=1")
	require.NoError(t, err)
	require.Equal(t, "/a/b", pagePath(deep))
}
