// Package urlmap converts remote URLs into local mirror paths and computes
// the relative references written into rewritten pages. All returned paths
// are slash-separated and relative to the mirror root, so the tree works
// under any base domain or subpath mount.
package urlmap

import (
	"net/url"
	"path"
	"strings"
)

// sanitizeReplacer maps characters that are invalid in filenames on at
// least one supported filesystem. Spaces are folded too so mirrored paths
// never need URL-encoding when served back.
var sanitizeReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"\\", "_",
	"|", "_",
	"?", "_",
	"*", "_",
	" ", "_",
)

// SanitizeSegment makes one path segment filesystem-safe.
func SanitizeSegment(seg string) string {
	return sanitizeReplacer.Replace(seg)
}

// LocalPath maps a URL to its file path relative to the mirror root.
//
// Rules: the empty path and paths ending in "/" become index.html inside
// that directory; extensionless paths get ".html" appended; every segment
// is sanitized. Query strings and fragments are dropped.
func LocalPath(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return SanitizeSegment(rawurl)
	}
	return localPathFor(u.Path)
}

func localPathFor(p string) string {
	p = strings.TrimPrefix(p, "/")

	if p == "" || strings.HasSuffix(p, "/") {
		p += "index.html"
	} else if path.Ext(p) == "" {
		p += ".html"
	}

	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = SanitizeSegment(part)
	}
	return strings.Join(parts, "/")
}

// Relative returns the href that, placed inside the page at fromURL's local
// path, resolves to targetURL's local path.
func Relative(targetURL, fromURL string) string {
	target := LocalPath(targetURL)
	from := LocalPath(fromURL)
	return RelativePath(target, from)
}

// RelativePath computes a relative reference between two mirror-root-relative
// file paths, from the directory containing from to target.
func RelativePath(target, from string) string {
	fromDir := path.Dir(from)
	if fromDir == "." {
		fromDir = ""
	}

	fromParts := splitClean(fromDir)
	targetParts := splitClean(target)

	// Drop the common prefix of directories.
	common := 0
	for common < len(fromParts) && common < len(targetParts)-1 &&
		fromParts[common] == targetParts[common] {
		common++
	}

	var out []string
	for i := common; i < len(fromParts); i++ {
		out = append(out, "..")
	}
	out = append(out, targetParts[common:]...)
	if len(out) == 0 {
		return "."
	}
	return strings.Join(out, "/")
}

func splitClean(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// SameHost reports whether rawurl points at the same host as base.
// Hosts are compared exactly; an earlier substring-based check also matched
// foreign hosts that merely contained the mirrored domain.
func SameHost(rawurl, base string) bool {
	u, err := url.Parse(rawurl)
	if err != nil {
		return false
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return u.Host != "" && strings.EqualFold(u.Host, b.Host)
}
