// Package cloner implements the crawl engine: it fetches pages, downloads
// the assets they reference, rewrites same-host links to relative local
// paths, and records every outcome in the manifest store.
package cloner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/lvillar/webmirror/internal/config"
	"github.com/lvillar/webmirror/internal/models"
	"github.com/lvillar/webmirror/internal/rewrite"
	"github.com/lvillar/webmirror/internal/store"
	"github.com/lvillar/webmirror/internal/urlmap"
)

// Cloner mirrors one site into an output tree.
type Cloner struct {
	cfg    *config.Config
	store  *store.Store
	client *http.Client
	skip   []*regexp.Regexp

	onEvent func(Event)

	mu      sync.Mutex
	seen    map[string]struct{} // asset URLs fetched or in flight
	queued  map[string]struct{} // page URLs accepted into the crawl
	failed  []Failure
	skipped []string
	pages   int
	assets  int
}

// Summary is what a finished run reports, and what clone_summary.json holds.
type Summary struct {
	BaseURL    string    `json:"base_url"`
	OutputDir  string    `json:"output_dir"`
	SnapshotID uint      `json:"snapshot_id"`
	Pages      int       `json:"pages"`
	Assets     int       `json:"assets"`
	Failed     int       `json:"failed_downloads"`
	Skipped    int       `json:"skipped"`
	FailedURLs []Failure `json:"failed_urls,omitempty"`
}

// New builds a Cloner from config. The store is required; skip patterns
// must compile or New fails.
func New(cfg *config.Config, st *store.Store) (*Cloner, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("cloner: base_url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("cloner: invalid base_url: %w", err)
	}

	skip := make([]*regexp.Regexp, 0, len(cfg.SkipPatterns))
	for _, p := range cfg.SkipPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("cloner: skip pattern %q: %w", p, err)
		}
		skip = append(skip, re)
	}

	return &Cloner{
		cfg:    cfg,
		store:  st,
		client: &http.Client{Timeout: time.Duration(cfg.FetchTimeout) * time.Second},
		skip:   skip,
		seen:   make(map[string]struct{}),
		queued: make(map[string]struct{}),
	}, nil
}

// OnEvent registers a progress callback. It is invoked from worker
// goroutines and must be safe for concurrent use.
func (c *Cloner) OnEvent(fn func(Event)) { c.onEvent = fn }

// Run executes the clone: resolve seeds, crawl with a bounded worker pool,
// then finalize the snapshot and write clone_summary.json at the mirror root.
func (c *Cloner) Run(ctx context.Context) (*Summary, error) {
	seeds, err := c.resolveSeeds(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	snap, err := c.store.CreateSnapshot(c.cfg.BaseURL, c.cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"base":     c.cfg.BaseURL,
		"seeds":    len(seeds),
		"workers":  c.cfg.Concurrency,
		"snapshot": snap.ID,
	}).Info("starting clone")

	workers := c.cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, seed := range seeds {
		c.enqueuePage(ctx, &wg, sem, snap.ID, seed)
	}
	wg.Wait()

	summary := c.buildSummary(snap.ID)
	status := models.SnapshotComplete
	if ctx.Err() != nil {
		status = models.SnapshotFailed
	}
	if err := c.store.FinishSnapshot(snap.ID, status,
		summary.Pages, summary.Assets, summary.Failed, summary.Skipped); err != nil {
		logrus.WithError(err).Warn("finalizing snapshot record")
	}

	if err := c.writeSummaryFile(summary); err != nil {
		logrus.WithError(err).Warn("writing clone_summary.json")
	}

	c.emit(Event{Type: EventSummary, Message: "clone finished",
		Pages: summary.Pages, Assets: summary.Assets,
		Failed: summary.Failed, Skipped: summary.Skipped})

	if ctx.Err() != nil {
		return summary, fmt.Errorf("clone interrupted: %w", ctx.Err())
	}
	return summary, nil
}

// resolveSeeds merges configured seed URLs with sitemap entries; with
// neither configured the crawl starts from the base URL alone.
func (c *Cloner) resolveSeeds(ctx context.Context) ([]string, error) {
	seeds := append([]string{}, c.cfg.SeedURLs...)

	if c.cfg.SitemapURL != "" {
		fromSitemap, err := c.fetchSitemap(ctx, c.cfg.SitemapURL)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, fromSitemap...)
	}

	if len(seeds) == 0 {
		seeds = []string{c.cfg.BaseURL}
	}
	return seeds, nil
}

// enqueuePage admits a page URL into the crawl once and starts a worker
// for it, bounded by the semaphore.
func (c *Cloner) enqueuePage(ctx context.Context, wg *sync.WaitGroup, sem chan struct{}, snapshotID uint, pageURL string) {
	normalized := normalizeURL(pageURL)
	if normalized == "" {
		return
	}

	c.mu.Lock()
	if _, dup := c.queued[normalized]; dup {
		c.mu.Unlock()
		return
	}
	c.queued[normalized] = struct{}{}
	c.mu.Unlock()

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-sem }()
		c.clonePage(ctx, wg, sem, snapshotID, normalized)
	}()
}

// clonePage fetches one page, downloads its assets, optionally enqueues
// discovered same-host pages, rewrites links and writes the file.
func (c *Cloner) clonePage(ctx context.Context, wg *sync.WaitGroup, sem chan struct{}, snapshotID uint, pageURL string) {
	if reason, skipped := c.shouldSkip(pageURL); skipped {
		c.recordSkip(snapshotID, pageURL, models.KindPage, reason)
		return
	}

	body, contentType, err := c.fetchWithRetry(ctx, pageURL)
	if err != nil {
		c.recordFailure(snapshotID, pageURL, models.KindPage, err)
		return
	}

	localRel := urlmap.LocalPath(pageURL)

	// A page URL that serves non-HTML content is stored verbatim.
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		if err := c.writeFile(localRel, body); err != nil {
			c.recordFailure(snapshotID, pageURL, models.KindAsset, err)
			return
		}
		c.recordDone(snapshotID, pageURL, models.KindAsset, localRel, contentType, len(body))
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		c.recordFailure(snapshotID, pageURL, models.KindPage, fmt.Errorf("parsing html: %w", err))
		return
	}

	for _, ref := range rewrite.ExtractAssetRefs(doc) {
		assetURL, ok := c.resolveSameHost(ref, pageURL)
		if !ok {
			continue
		}
		c.downloadAsset(ctx, snapshotID, assetURL, 0)
	}

	if c.cfg.FollowLinks {
		for _, ref := range rewrite.ExtractPageRefs(doc) {
			linkURL, ok := c.resolveSameHost(ref, pageURL)
			if !ok {
				continue
			}
			c.enqueuePage(ctx, wg, sem, snapshotID, linkURL)
		}
	}

	rewritten, err := rewrite.RewriteHTML(body, pageURL, c.cfg.BaseURL)
	if err != nil {
		c.recordFailure(snapshotID, pageURL, models.KindPage, err)
		return
	}
	if err := c.writeFile(localRel, rewritten); err != nil {
		c.recordFailure(snapshotID, pageURL, models.KindPage, err)
		return
	}

	c.recordDone(snapshotID, pageURL, models.KindPage, localRel, contentType, len(rewritten))
}

// maxCSSDepth caps stylesheet recursion; imports deeper than this are
// almost certainly a cycle.
const maxCSSDepth = 8

// downloadAsset fetches one asset exactly once per run. Stylesheets are
// scanned for url()/@import references, which are downloaded recursively,
// and rewritten relative to the stylesheet's directory.
func (c *Cloner) downloadAsset(ctx context.Context, snapshotID uint, assetURL string, depth int) {
	normalized := normalizeURL(assetURL)
	if normalized == "" || depth > maxCSSDepth {
		return
	}

	c.mu.Lock()
	if _, dup := c.seen[normalized]; dup {
		c.mu.Unlock()
		return
	}
	if _, isPage := c.queued[normalized]; isPage {
		// Already in the crawl as a page; fetching it again as an asset
		// would overwrite the rewritten document with raw bytes.
		c.mu.Unlock()
		return
	}
	c.seen[normalized] = struct{}{}
	c.mu.Unlock()

	if reason, skipped := c.shouldSkip(normalized); skipped {
		c.recordSkip(snapshotID, normalized, models.KindAsset, reason)
		return
	}

	body, contentType, err := c.fetchWithRetry(ctx, normalized)
	if err != nil {
		c.recordFailure(snapshotID, normalized, models.KindAsset, err)
		return
	}

	localRel := urlmap.LocalPath(normalized)
	kind := models.KindAsset

	if isStylesheet(localRel, contentType) {
		kind = models.KindStylesheet
		for _, ref := range rewrite.ExtractCSSRefs(string(body)) {
			childURL, ok := c.resolveSameHost(ref, normalized)
			if !ok {
				continue
			}
			c.downloadAsset(ctx, snapshotID, childURL, depth+1)
		}
		body = rewrite.RewriteCSS(body, normalized, c.cfg.BaseURL)
	}

	if err := c.writeFile(localRel, body); err != nil {
		c.recordFailure(snapshotID, normalized, kind, err)
		return
	}
	c.recordDone(snapshotID, normalized, kind, localRel, contentType, len(body))
}

// fetchWithRetry wraps fetch with bounded retries and a short backoff,
// matching the fallback behavior sites with flaky CDNs need.
func (c *Cloner) fetchWithRetry(ctx context.Context, rawurl string) ([]byte, string, error) {
	attempts := c.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, contentType, err := c.fetch(ctx, rawurl)
		if err == nil {
			return body, contentType, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		if attempt < attempts {
			logrus.WithError(err).WithFields(logrus.Fields{
				"url": rawurl, "attempt": attempt,
			}).Debug("fetch failed, retrying")
			select {
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		}
	}
	return nil, "", lastErr
}

func (c *Cloner) fetch(ctx context.Context, rawurl string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("GET %s: status %d", rawurl, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", rawurl, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// resolveSameHost resolves a raw reference against its document URL and
// returns it only when it is a fetchable same-host http(s) URL.
func (c *Cloner) resolveSameHost(ref, docURL string) (string, bool) {
	if rewrite.Skippable(ref) {
		return "", false
	}
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	base, err := url.Parse(docURL)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(parsed)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if !urlmap.SameHost(abs.String(), c.cfg.BaseURL) {
		return "", false
	}
	return abs.String(), true
}

func (c *Cloner) shouldSkip(rawurl string) (string, bool) {
	for _, re := range c.skip {
		if re.MatchString(rawurl) {
			return "matches skip pattern " + re.String(), true
		}
	}
	return "", false
}

// writeFile writes bytes under the output dir, creating parent directories.
// localRel is slash-separated and must stay inside the tree.
func (c *Cloner) writeFile(localRel string, body []byte) error {
	cleaned := path.Clean(localRel)
	if strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("refusing path outside output dir: %s", localRel)
	}
	target := filepath.Join(c.cfg.OutputDir, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, body, 0o644)
}

func isStylesheet(localRel, contentType string) bool {
	return strings.HasSuffix(localRel, ".css") ||
		strings.Contains(strings.ToLower(contentType), "text/css")
}

// normalizeURL strips the fragment so dedup treats anchor variants as one
// resource.
func normalizeURL(rawurl string) string {
	u, err := url.Parse(strings.TrimSpace(rawurl))
	if err != nil {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// ── outcome recording ────────────────────────────────────────────────────────

func (c *Cloner) recordDone(snapshotID uint, rawurl string, kind models.ResourceKind, localRel, contentType string, size int) {
	c.persist(&models.Resource{
		SnapshotID: snapshotID, URL: rawurl, Kind: kind,
		Status: models.StatusDone, LocalPath: localRel,
		ContentType: contentType, Bytes: int64(size), FetchedAt: time.Now(),
	})

	c.mu.Lock()
	if kind == models.KindPage {
		c.pages++
	} else {
		c.assets++
	}
	ev := c.snapshotCountsLocked(Event{URL: rawurl, Path: localRel})
	c.mu.Unlock()

	if kind == models.KindPage {
		ev.Type = EventPage
		logrus.WithFields(logrus.Fields{"url": rawurl, "path": localRel}).Info("page mirrored")
	} else {
		ev.Type = EventAsset
		logrus.WithFields(logrus.Fields{"url": rawurl, "path": localRel}).Debug("asset mirrored")
	}
	c.emit(ev)
}

func (c *Cloner) recordFailure(snapshotID uint, rawurl string, kind models.ResourceKind, err error) {
	logrus.WithError(err).WithField("url", rawurl).Warn("download failed")
	c.persist(&models.Resource{
		SnapshotID: snapshotID, URL: rawurl, Kind: kind,
		Status: models.StatusFailed, Error: err.Error(), FetchedAt: time.Now(),
	})

	c.mu.Lock()
	c.failed = append(c.failed, Failure{URL: rawurl, Error: err.Error()})
	ev := c.snapshotCountsLocked(Event{URL: rawurl, Message: err.Error()})
	c.mu.Unlock()

	ev.Type = EventFailure
	c.emit(ev)
}

func (c *Cloner) recordSkip(snapshotID uint, rawurl string, kind models.ResourceKind, reason string) {
	logrus.WithFields(logrus.Fields{"url": rawurl, "reason": reason}).Debug("skipped")
	c.persist(&models.Resource{
		SnapshotID: snapshotID, URL: rawurl, Kind: kind,
		Status: models.StatusSkipped, Error: reason, FetchedAt: time.Now(),
	})

	c.mu.Lock()
	c.skipped = append(c.skipped, rawurl)
	ev := c.snapshotCountsLocked(Event{URL: rawurl, Message: reason})
	c.mu.Unlock()

	ev.Type = EventSkip
	c.emit(ev)
}

func (c *Cloner) persist(r *models.Resource) {
	if err := c.store.RecordResource(r); err != nil {
		logrus.WithError(err).WithField("url", r.URL).Warn("recording resource")
	}
}

// snapshotCountsLocked fills the running totals into ev. Callers hold c.mu.
func (c *Cloner) snapshotCountsLocked(ev Event) Event {
	ev.Pages = c.pages
	ev.Assets = c.assets
	ev.Failed = len(c.failed)
	ev.Skipped = len(c.skipped)
	return ev
}

func (c *Cloner) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func (c *Cloner) buildSummary(snapshotID uint) *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Summary{
		BaseURL:    c.cfg.BaseURL,
		OutputDir:  c.cfg.OutputDir,
		SnapshotID: snapshotID,
		Pages:      c.pages,
		Assets:     c.assets,
		Failed:     len(c.failed),
		Skipped:    len(c.skipped),
		FailedURLs: append([]Failure{}, c.failed...),
	}
}

func (c *Cloner) writeSummaryFile(summary *Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.cfg.OutputDir, "clone_summary.json"), data, 0o644)
}
