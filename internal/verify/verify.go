// Package verify checks a mirrored tree offline: every local reference in
// every HTML and CSS file must resolve to a file in the tree, and no
// reference may depend on the base domain or mount point.
package verify

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/lvillar/webmirror/internal/models"
	"github.com/lvillar/webmirror/internal/rewrite"
)

// Finding is one broken or non-portable reference.
type Finding struct {
	SourcePath string `json:"source_path"`
	Ref        string `json:"ref"`
	Reason     string `json:"reason"`
}

// Report aggregates the results of one verification pass.
type Report struct {
	Root     string    `json:"root"`
	Files    int       `json:"files_checked"`
	Refs     int       `json:"refs_checked"`
	Findings []Finding `json:"findings,omitempty"`
}

// OK reports whether the tree passed with no findings.
func (r *Report) OK() bool { return len(r.Findings) == 0 }

// BrokenLinks converts the findings into store rows.
func (r *Report) BrokenLinks() []models.BrokenLink {
	out := make([]models.BrokenLink, 0, len(r.Findings))
	for _, f := range r.Findings {
		out = append(out, models.BrokenLink{
			SourcePath: f.SourcePath, Ref: f.Ref, Reason: f.Reason,
		})
	}
	return out
}

// Tree walks root and checks every .html and .css file.
func Tree(root string) (*Report, error) {
	report := &Report{Root: root}

	files := make(map[string]struct{})
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	for rel := range files {
		switch strings.ToLower(path.Ext(rel)) {
		case ".html", ".htm":
			if err := checkHTML(root, rel, files, report); err != nil {
				return nil, err
			}
		case ".css":
			if err := checkCSS(root, rel, files, report); err != nil {
				return nil, err
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"root": root, "files": report.Files,
		"refs": report.Refs, "findings": len(report.Findings),
	}).Info("verification finished")
	return report, nil
}

func checkHTML(root, rel string, files map[string]struct{}, report *Report) error {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", rel, err)
	}
	report.Files++

	refs := rewrite.ExtractAssetRefs(doc)
	refs = append(refs, rewrite.ExtractPageRefs(doc)...)
	for _, ref := range refs {
		checkRef(rel, ref, files, report)
	}
	return nil
}

func checkCSS(root, rel string, files map[string]struct{}, report *Report) error {
	body, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	report.Files++

	for _, ref := range rewrite.ExtractCSSRefs(string(body)) {
		checkRef(rel, ref, files, report)
	}
	return nil
}

// checkRef classifies one reference. External and inert refs pass; an
// absolute local path is flagged as mount-dependent; a relative ref must
// resolve to an existing file.
func checkRef(sourceRel, ref string, files map[string]struct{}, report *Report) {
	if rewrite.Skippable(ref) {
		return
	}
	report.Refs++

	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		report.Findings = append(report.Findings, Finding{
			SourcePath: sourceRel, Ref: ref, Reason: "unparseable reference",
		})
		return
	}

	// Absolute URLs point off-tree; a different host is legitimately
	// external, same-host ones were rewritten during cloning.
	if parsed.Scheme != "" || parsed.Host != "" {
		return
	}

	target := parsed.Path
	if target == "" {
		// query- or fragment-only ref; resolves to the file itself
		return
	}

	if strings.HasPrefix(target, "/") {
		report.Findings = append(report.Findings, Finding{
			SourcePath: sourceRel, Ref: ref,
			Reason: "absolute local path breaks subpath mounts",
		})
		return
	}

	joined := path.Join(path.Dir(sourceRel), target)
	if strings.HasPrefix(joined, "..") {
		report.Findings = append(report.Findings, Finding{
			SourcePath: sourceRel, Ref: ref, Reason: "reference escapes the tree",
		})
		return
	}
	if strings.HasSuffix(target, "/") {
		joined = path.Join(joined, "index.html")
	}

	if _, ok := files[joined]; ok {
		return
	}
	// A directory target without trailing slash may still resolve.
	if _, ok := files[path.Join(joined, "index.html")]; ok {
		return
	}

	report.Findings = append(report.Findings, Finding{
		SourcePath: sourceRel, Ref: ref,
		Reason: "target not found: " + joined,
	})
}
