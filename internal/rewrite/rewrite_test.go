package rewrite

import (
	"bytes"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <link rel="stylesheet" href="/css/main.css">
  <script src="https://example.org/js/app.js"></script>
  <style>.hero { background: url('/img/hero.jpg'); }</style>
</head>
<body>
  <a href="/cars">Cars</a>
  <a href="https://other.example.com/partner">Partner</a>
  <a href="#team">Team</a>
  <a href="mailto:info@example.org">Mail</a>
  <img src="/img/logo.png" data-src="/img/logo-lazy.png">
  <img srcset="/img/small.jpg 640w, /img/big.jpg 1280w" src="/img/big.jpg">
  <iframe src="https://example.org/embed/map"></iframe>
  <img src="data:image/gif;base64,R0lGOD">
</body>
</html>`

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractAssetRefs(t *testing.T) {
	refs := ExtractAssetRefs(parseDoc(t, samplePage))

	assert.Contains(t, refs, "/css/main.css")
	assert.Contains(t, refs, "https://example.org/js/app.js")
	assert.Contains(t, refs, "/img/logo.png")
	assert.Contains(t, refs, "/img/logo-lazy.png")
	assert.Contains(t, refs, "/img/small.jpg")
	assert.Contains(t, refs, "/img/big.jpg")
	assert.Contains(t, refs, "https://example.org/embed/map")
	// inline <style> url()
	assert.Contains(t, refs, "/img/hero.jpg")
	// anchors are page refs, not assets
	assert.NotContains(t, refs, "/cars")
}

func TestExtractPageRefs(t *testing.T) {
	refs := ExtractPageRefs(parseDoc(t, samplePage))
	assert.Contains(t, refs, "/cars")
	assert.Contains(t, refs, "https://other.example.com/partner")
	assert.Contains(t, refs, "#team")
}

func TestExtractCSSRefs(t *testing.T) {
	css := `
@import "base.css";
@import url("https://example.org/css/fonts.css");
.a { background: url('/img/bg.png'); }
.b { background: url(  "img/tile.png"  ); }
.c { background: url(data:image/png;base64,AAA); }
`
	refs := ExtractCSSRefs(css)
	assert.Contains(t, refs, "base.css")
	assert.Contains(t, refs, "https://example.org/css/fonts.css")
	assert.Contains(t, refs, "/img/bg.png")
	assert.Contains(t, refs, "img/tile.png")
	for _, r := range refs {
		assert.False(t, strings.HasPrefix(r, "data:"))
	}
}

func TestSrcsetURLs(t *testing.T) {
	urls := SrcsetURLs("/a.jpg 640w, /b.jpg 2x, /c.jpg")
	assert.Equal(t, []string{"/a.jpg", "/b.jpg", "/c.jpg"}, urls)
}

func TestSkippable(t *testing.T) {
	for _, ref := range []string{"", "#top", "data:image/png;base64,AA", "javascript:void(0)", "mailto:a@b.c", "tel:+123"} {
		assert.True(t, Skippable(ref), ref)
	}
	assert.False(t, Skippable("/cars"))
	assert.False(t, Skippable("https://example.org/"))
}

func TestLocalizeRef(t *testing.T) {
	base := "https://example.org"
	page := "https://example.org/cars/index"

	t.Run("same-host absolute", func(t *testing.T) {
		got, changed := LocalizeRef("https://example.org/img/logo.png", page, base)
		assert.True(t, changed)
		assert.Equal(t, "../img/logo.png", got)
	})

	t.Run("root-relative", func(t *testing.T) {
		got, changed := LocalizeRef("/sponsors", page, base)
		assert.True(t, changed)
		assert.Equal(t, "../sponsors.html", got)
	})

	t.Run("external untouched", func(t *testing.T) {
		got, changed := LocalizeRef("https://other.example.com/x", page, base)
		assert.False(t, changed)
		assert.Equal(t, "https://other.example.com/x", got)
	})

	t.Run("fragment preserved", func(t *testing.T) {
		got, changed := LocalizeRef("/our-team#drivers", page, base)
		assert.True(t, changed)
		assert.Equal(t, "../our-team.html#drivers", got)
	})

	t.Run("anchor untouched", func(t *testing.T) {
		got, changed := LocalizeRef("#team", page, base)
		assert.False(t, changed)
		assert.Equal(t, "#team", got)
	})
}

func TestRewriteHTML(t *testing.T) {
	out, err := RewriteHTML([]byte(samplePage), "https://example.org/", "https://example.org")
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, `href="css/main.css"`)
	assert.Contains(t, html, `src="js/app.js"`)
	assert.Contains(t, html, `href="cars.html"`)
	assert.Contains(t, html, `src="img/logo.png"`)
	assert.Contains(t, html, `data-src="img/logo-lazy.png"`)
	assert.Contains(t, html, `src="embed/map.html"`)
	assert.Contains(t, html, "img/small.jpg 640w")
	assert.Contains(t, html, "img/big.jpg 1280w")

	// untouched references
	assert.Contains(t, html, `href="https://other.example.com/partner"`)
	assert.Contains(t, html, `href="#team"`)
	assert.Contains(t, html, `href="mailto:info@example.org"`)
	assert.Contains(t, html, "data:image/gif;base64,R0lGOD")
}

func TestRewriteHTMLSubdirectoryPage(t *testing.T) {
	page := `<html><body><a href="/index"><img src="/img/logo.png"></a></body></html>`
	out, err := RewriteHTML([]byte(page), "https://example.org/cars/hr23", "https://example.org")
	require.NoError(t, err)

	assert.Contains(t, string(out), `href="../index.html"`)
	assert.Contains(t, string(out), `src="../img/logo.png"`)
}

func TestRewriteCSS(t *testing.T) {
	css := []byte(`@import "https://example.org/css/base.css";
.a { background: url(/img/bg.png); }
.b { background: url(tile.png); }
.c { background: url(https://cdn.other.com/x.png); }`)

	out := RewriteCSS(css, "https://example.org/css/main.css", "https://example.org")
	s := string(out)

	assert.Contains(t, s, `@import "base.css"`)
	assert.Contains(t, s, "url(../img/bg.png)")
	// already-relative same-host ref resolves to the same directory
	assert.Contains(t, s, "url(tile.png)")
	// cross-host untouched
	assert.Contains(t, s, "url(https://cdn.other.com/x.png)")
}

func TestRewriteHTMLKeepsDoctype(t *testing.T) {
	out, err := RewriteHTML([]byte(samplePage), "https://example.org/", "https://example.org")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(bytes.TrimSpace(out), []byte("<!DOCTYPE html>")))
}
