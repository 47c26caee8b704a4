package rewrite

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lvillar/webmirror/internal/urlmap"
)

// RewriteHTML rewrites every same-host reference in a page to the relative
// local path of its mirrored file. External absolute URLs, anchors, data:,
// javascript:, mailto: and tel: references are left untouched.
func RewriteHTML(content []byte, pageURL, baseURL string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing page %s: %w", pageURL, err)
	}

	pairs := append([]AttrPair{{"a", "href"}}, AssetAttrs...)
	for _, pair := range pairs {
		pair := pair
		doc.Find(pair.Tag + "[" + pair.Attr + "]").Each(func(_ int, s *goquery.Selection) {
			val, _ := s.Attr(pair.Attr)
			if pair.Attr == "srcset" {
				if rewritten, changed := rewriteSrcset(val, pageURL, baseURL); changed {
					s.SetAttr(pair.Attr, rewritten)
				}
				return
			}
			if rewritten, changed := LocalizeRef(val, pageURL, baseURL); changed {
				s.SetAttr(pair.Attr, rewritten)
			}
		})
	}

	out, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("rendering page %s: %w", pageURL, err)
	}
	return []byte(out), nil
}

// RewriteCSS rewrites same-host url() and @import references in a
// stylesheet relative to the stylesheet's own mirrored directory.
func RewriteCSS(css []byte, cssURL, baseURL string) []byte {
	out := cssURLRe.ReplaceAllStringFunc(string(css), func(m string) string {
		sub := cssURLRe.FindStringSubmatch(m)
		if rewritten, changed := LocalizeRef(sub[1], cssURL, baseURL); changed {
			return "url(" + rewritten + ")"
		}
		return m
	})
	out = cssImportRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := cssImportRe.FindStringSubmatch(m)
		if rewritten, changed := LocalizeRef(sub[1], cssURL, baseURL); changed {
			return `@import "` + rewritten + `"`
		}
		return m
	})
	return []byte(out)
}

// LocalizeRef converts one reference found in the document at docURL into a
// relative local path when it points at the mirrored host. The fragment is
// preserved; the query string is not (mirrored files carry no parameters).
func LocalizeRef(ref, docURL, baseURL string) (string, bool) {
	if Skippable(ref) {
		return ref, false
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ref, false
	}
	base, err := url.Parse(docURL)
	if err != nil {
		return ref, false
	}
	abs := base.ResolveReference(parsed)

	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ref, false
	}
	if !urlmap.SameHost(abs.String(), baseURL) {
		return ref, false
	}

	rel := urlmap.Relative(abs.String(), docURL)
	if abs.Fragment != "" {
		rel += "#" + abs.Fragment
	}
	return rel, rel != ref
}

func rewriteSrcset(srcset, docURL, baseURL string) (string, bool) {
	changed := false
	candidates := strings.Split(srcset, ",")
	for i, candidate := range candidates {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		if rewritten, ok := LocalizeRef(fields[0], docURL, baseURL); ok {
			fields[0] = rewritten
			changed = true
		}
		candidates[i] = strings.Join(fields, " ")
	}
	if !changed {
		return srcset, false
	}
	return strings.Join(candidates, ", "), true
}
