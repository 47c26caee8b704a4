package urlmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalPath(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{"root", "https://example.org", "index.html"},
		{"root slash", "https://example.org/", "index.html"},
		{"extensionless page", "https://example.org/cars", "cars.html"},
		{"directory", "https://example.org/cars/", "cars/index.html"},
		{"asset keeps extension", "https://example.org/img/logo.png", "img/logo.png"},
		{"nested page", "https://example.org/team/drivers", "team/drivers.html"},
		{"query dropped", "https://example.org/media?page=2", "media.html"},
		{"spaces sanitized", "https://example.org/my file.pdf", "my_file.pdf"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LocalPath(tc.url))
		})
	}
}

func TestSanitizeSegment(t *testing.T) {
	assert.Equal(t, "a_b_c_d", SanitizeSegment(`a<b>c d`))
	assert.Equal(t, "file_.png", SanitizeSegment("file*.png"))
	assert.Equal(t, "plain.css", SanitizeSegment("plain.css"))
}

func TestRelativePath(t *testing.T) {
	cases := []struct {
		name   string
		target string
		from   string
		want   string
	}{
		{"sibling", "work.html", "index.html", "work.html"},
		{"into subdir", "img/logo.png", "index.html", "img/logo.png"},
		{"up one", "index.html", "cars/index.html", "../index.html"},
		{"same dir deep", "cars/hr23.html", "cars/index.html", "hr23.html"},
		{"across dirs", "img/logo.png", "cars/index.html", "../img/logo.png"},
		{"deep up", "index.html", "a/b/c.html", "../../index.html"},
		{"self", "index.html", "index.html", "index.html"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RelativePath(tc.target, tc.from))
		})
	}
}

func TestRelative(t *testing.T) {
	got := Relative("https://example.org/sponsors", "https://example.org/cars/")
	assert.Equal(t, "../sponsors.html", got)

	got = Relative("https://example.org/", "https://example.org/contact_us")
	assert.Equal(t, "index.html", got)
}

func TestSameHost(t *testing.T) {
	assert.True(t, SameHost("https://example.org/x", "https://example.org"))
	assert.True(t, SameHost("http://EXAMPLE.org/x", "https://example.org/"))
	assert.False(t, SameHost("https://www.example.org/x", "https://example.org"))
	assert.False(t, SameHost("https://cdn.example.org.evil.com/x", "https://example.org"))
	assert.False(t, SameHost("relative/path.png", "https://example.org"))
}
