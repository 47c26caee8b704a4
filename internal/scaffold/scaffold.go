// Package scaffold writes deployment configuration into a mirror tree:
// provider config files, a deploy README, .nojekyll and .gitignore. The
// providers themselves are external; only their well-known config formats
// are emitted here.
package scaffold

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// vercelConfig mirrors the vercel.json schema subset a static site needs.
type vercelConfig struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Builds  []struct {
		Src string `json:"src"`
		Use string `json:"use"`
	} `json:"builds"`
	Routes []struct {
		Src  string `json:"src"`
		Dest string `json:"dest"`
	} `json:"routes"`
	Headers []struct {
		Source  string `json:"source"`
		Headers []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"headers"`
}

const netlifyTemplate = `# Netlify configuration
[[redirects]]
  from = "/*"
  to = "/index.html"
  status = 200
  force = false

[[headers]]
  for = "/*"
  [headers.values]
    Cache-Control = "public, max-age=31536000"

[[headers]]
  for = "*.html"
  [headers.values]
    Cache-Control = "public, max-age=0, must-revalidate"
`

const readmeTemplate = `# %s

This directory is a self-contained static site, ready for deployment.

## Deploy to Vercel
1. Install the Vercel CLI: npm install -g vercel
2. Run: vercel --prod

## Deploy to Netlify
1. Install the Netlify CLI: npm install -g netlify-cli
2. Run: netlify deploy --prod --dir .

## Deploy to GitHub Pages
1. Push these files to a repository branch
2. Enable GitHub Pages in the repository settings for that branch

## Local preview
Run: webmirror serve
Then open: http://localhost:8000

## File structure
- HTML pages are at the root level
- Assets are organized in subdirectories
- All links are relative and work on any domain
`

const gitignoreTemplate = `# Tool state
webmirror.db
clone_summary.json

# IDE
.vscode/
.idea/

# OS
.DS_Store
Thumbs.db

# Logs
*.log
`

// Write places the deployment files into dir. Existing files are kept
// unless force is set. It returns the paths it wrote.
func Write(dir, siteName string, force bool) ([]string, error) {
	if siteName == "" {
		siteName = "static site"
	}

	vercel := vercelConfig{Version: 2, Name: siteName}
	vercel.Builds = append(vercel.Builds, struct {
		Src string `json:"src"`
		Use string `json:"use"`
	}{Src: "*.html", Use: "@vercel/static"})
	vercel.Routes = append(vercel.Routes, struct {
		Src  string `json:"src"`
		Dest string `json:"dest"`
	}{Src: "/(.*)", Dest: "/$1"})
	vercel.Headers = append(vercel.Headers, struct {
		Source  string `json:"source"`
		Headers []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"headers"`
	}{
		Source: "/(.*)",
		Headers: []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}{{Key: "Cache-Control", Value: "public, max-age=31536000, immutable"}},
	})

	vercelJSON, err := json.MarshalIndent(vercel, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling vercel.json: %w", err)
	}

	files := map[string][]byte{
		"vercel.json":  vercelJSON,
		"netlify.toml": []byte(netlifyTemplate),
		".nojekyll":    []byte("# Bypass Jekyll processing\n"),
		"README.md":    []byte(fmt.Sprintf(readmeTemplate, siteName)),
		".gitignore":   []byte(gitignoreTemplate),
	}

	var written []string
	for name, content := range files {
		target := filepath.Join(dir, name)
		if !force {
			if _, err := os.Stat(target); err == nil {
				logrus.WithField("file", name).Debug("exists, keeping")
				continue
			}
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", name, err)
		}
		written = append(written, target)
	}
	return written, nil
}
