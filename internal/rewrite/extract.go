// Package rewrite extracts asset references from HTML and CSS documents and
// rewrites same-host references into relative local paths, so a mirrored
// tree renders identically under any base domain or subpath mount.
package rewrite

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// AttrPair names one tag/attribute combination that can carry an asset URL.
type AttrPair struct {
	Tag  string
	Attr string
}

// AssetAttrs lists every tag/attribute pair scanned for asset references.
// srcset values hold multiple comma-separated candidates and get special
// handling wherever this table is consumed.
var AssetAttrs = []AttrPair{
	{"link", "href"},
	{"script", "src"},
	{"img", "src"},
	{"img", "data-src"},
	{"source", "src"},
	{"source", "srcset"},
	{"video", "src"},
	{"audio", "src"},
	{"embed", "src"},
	{"object", "data"},
	{"iframe", "src"},
}

var (
	cssURLRe    = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)
	cssImportRe = regexp.MustCompile(`@import\s+['"]([^'"]+)['"]`)
)

// ExtractAssetRefs collects every raw asset reference from a parsed page,
// including srcset candidates and url() values inside <style> blocks.
// Values are returned as written in the document, not resolved.
func ExtractAssetRefs(doc *goquery.Document) []string {
	var refs []string

	for _, pair := range AssetAttrs {
		sel := doc.Find(pair.Tag + "[" + pair.Attr + "]")
		sel.Each(func(_ int, s *goquery.Selection) {
			val, _ := s.Attr(pair.Attr)
			if val == "" {
				return
			}
			if pair.Attr == "srcset" {
				refs = append(refs, SrcsetURLs(val)...)
				return
			}
			refs = append(refs, val)
		})
	}

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		refs = append(refs, ExtractCSSRefs(s.Text())...)
	})

	return refs
}

// ExtractPageRefs collects the raw <a href> values from a parsed page.
func ExtractPageRefs(doc *goquery.Document) []string {
	var refs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if val, _ := s.Attr("href"); val != "" {
			refs = append(refs, val)
		}
	})
	return refs
}

// ExtractCSSRefs collects url() and @import references from a stylesheet.
// data: URLs are never returned.
func ExtractCSSRefs(css string) []string {
	var refs []string
	for _, m := range cssURLRe.FindAllStringSubmatch(css, -1) {
		if strings.HasPrefix(m[1], "data:") {
			continue
		}
		refs = append(refs, m[1])
	}
	for _, m := range cssImportRe.FindAllStringSubmatch(css, -1) {
		refs = append(refs, m[1])
	}
	return refs
}

// SrcsetURLs splits a srcset attribute into its candidate URLs, dropping
// width ("640w") and density ("2x") descriptors.
func SrcsetURLs(srcset string) []string {
	var urls []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		urls = append(urls, fields[0])
	}
	return urls
}

// Skippable reports whether a reference must be left untouched: inline
// data, script pseudo-URLs, contact schemes and in-page anchors.
func Skippable(ref string) bool {
	switch {
	case ref == "",
		strings.HasPrefix(ref, "data:"),
		strings.HasPrefix(ref, "javascript:"),
		strings.HasPrefix(ref, "mailto:"),
		strings.HasPrefix(ref, "tel:"),
		strings.HasPrefix(ref, "#"):
		return true
	}
	return false
}
