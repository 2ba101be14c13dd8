// Package crawler fetches rendered documentation pages for a package from
// the documentation host and extracts their prose content. Crawling is a
// bounded breadth-first traversal: it starts at the package's root page,
// follows same-host relative links that belong to the package, and stops
// when the page budget is exhausted or the frontier empties.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"mcpdocs/internal/docerr"
	"mcpdocs/internal/logging"
)

// contentSelectors match the documentation body blocks on a rendered page.
var contentSelectors = []string{"div.docblock", "section.docblock", ".rustdoc .docblock"}

// skipFragments are anchor kinds that point into a page already crawled.
var skipFragments = []string{"method.", "impl-", "associatedtype.", "associatedconstant."}

// Document is one crawled page: its path relative to the documentation host
// and the extracted text content.
type Document struct {
	Path    string
	Content string
}

// Result is the outcome of a crawl.
type Result struct {
	Documents []Document
	// Version is the concrete version the documentation host served,
	// when it could be determined. Empty otherwise.
	Version string
}

// Config controls crawl behaviour. Zero values get sensible defaults.
type Config struct {
	// BaseURL is the documentation host, e.g. "https://docs.rs".
	BaseURL string
	// HTTPClient used for fetching. Defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// MaxRetries is how many times a failed fetch is retried.
	MaxRetries int
	// InitialBackoff is the first retry delay; it doubles per retry up to
	// MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// PolitenessDelay is the pause between page fetches.
	PolitenessDelay time.Duration
}

// Crawler fetches documentation pages for packages.
type Crawler struct {
	cfg Config
	log *zap.Logger
}

// New creates a Crawler, filling in defaults for unset Config fields.
func New(cfg Config) *Crawler {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://docs.rs"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.PolitenessDelay == 0 {
		cfg.PolitenessDelay = 500 * time.Millisecond
	}
	return &Crawler{cfg: cfg, log: logging.Get(logging.CategoryCrawler)}
}

// Crawl walks the documentation for packageName, visiting at most maxPages
// pages. versionSpec selects the documentation version ("latest" when empty).
// features are recorded for logging only; the documentation host serves a
// single rendered build per version.
func (c *Crawler) Crawl(ctx context.Context, packageName, versionSpec string, features []string, maxPages int) (*Result, error) {
	if maxPages <= 0 {
		return nil, docerr.New(docerr.KindConfig, "maxPages must be positive, got %d", maxPages)
	}
	spec := versionSpec
	if spec == "" {
		spec = "latest"
	}

	// Rendered module paths use the underscore form of the package name.
	modName := strings.ReplaceAll(packageName, "-", "_")
	seed := fmt.Sprintf("%s/%s/%s/%s/", c.cfg.BaseURL, packageName, spec, modName)

	baseU, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, docerr.Wrap(docerr.KindConfig, err, "invalid base URL %q", c.cfg.BaseURL)
	}
	docHost := baseU.Host

	c.log.Info("starting crawl",
		zap.String("package", packageName),
		zap.String("version_spec", spec),
		zap.Strings("features", features),
		zap.Int("max_pages", maxPages),
		zap.String("seed", seed))

	result := &Result{}
	visited := map[string]bool{normalizeKey(seed): true}
	queue := []string{seed}
	processed := 0
	// Stop discovering new links once most of the budget is spent, so the
	// remaining budget drains the frontier instead of growing it.
	discoverLimit := maxPages * 3 / 4

	for len(queue) > 0 && processed < maxPages {
		if err := ctx.Err(); err != nil {
			return nil, docerr.Wrap(docerr.KindInternal, err, "crawl cancelled")
		}

		pageURL := queue[0]
		queue = queue[1:]

		body, finalURL, err := c.fetchWithRetry(ctx, pageURL)
		if err != nil {
			// Page failures are never fatal; an unreachable seed just
			// yields an empty result.
			c.log.Warn("skipping page", zap.String("url", pageURL), zap.Error(err))
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			c.log.Warn("failed to parse page", zap.String("url", pageURL), zap.Error(err))
			continue
		}
		processed++

		// Version detection looks at the first processed page only.
		if processed == 1 {
			result.Version = extractVersion(doc, finalURL)
		}

		if content := extractContent(doc); content != "" {
			result.Documents = append(result.Documents, Document{
				Path:    docPath(finalURL),
				Content: content,
			})
		}

		if processed < discoverLimit {
			for _, next := range c.discoverLinks(doc, finalURL, docHost, packageName, modName) {
				key := normalizeKey(next)
				if !visited[key] {
					visited[key] = true
					queue = append(queue, next)
				}
			}
		}

		if len(queue) > 0 && processed < maxPages {
			if err := sleepCtx(ctx, c.cfg.PolitenessDelay); err != nil {
				return nil, docerr.Wrap(docerr.KindInternal, err, "crawl cancelled")
			}
		}
	}

	c.log.Info("crawl finished",
		zap.String("package", packageName),
		zap.Int("pages_processed", processed),
		zap.Int("documents", len(result.Documents)),
		zap.String("version", result.Version))
	return result, nil
}

// fetchWithRetry fetches a URL, retrying transient failures with exponential
// backoff. 4xx responses other than 429 are permanent and fail immediately.
// Returns the response body and the final URL after redirects.
func (c *Crawler) fetchWithRetry(ctx context.Context, rawURL string) (string, *url.URL, error) {
	delay := c.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug("retrying fetch",
				zap.String("url", rawURL), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			if err := sleepCtx(ctx, delay); err != nil {
				return "", nil, err
			}
			delay *= 2
			if delay > c.cfg.MaxBackoff {
				delay = c.cfg.MaxBackoff
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", nil, docerr.Wrap(docerr.KindNetwork, err, "building request for %s", rawURL)
		}
		req.Header.Set("User-Agent", "mcpdocs-crawler/1.0")

		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				lastErr = err
				continue
			}
			return string(data), resp.Request.URL, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = docerr.New(docerr.KindRateLimited, "rate limited fetching %s", rawURL)
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return "", nil, docerr.New(docerr.KindNotFound, "page not found: %s", rawURL)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			resp.Body.Close()
			return "", nil, docerr.New(docerr.KindNetwork, "permanent HTTP %d fetching %s", resp.StatusCode, rawURL)
		default:
			resp.Body.Close()
			lastErr = docerr.New(docerr.KindNetwork, "HTTP %d fetching %s", resp.StatusCode, rawURL)
		}
	}

	return "", nil, docerr.Wrap(docerr.KindNetwork, lastErr, "exhausted retries fetching %s", rawURL)
}

// discoverLinks returns candidate page URLs linked from doc. Only relative
// links resolving to the documentation host and containing the package name
// are followed; source views and intra-page item anchors are skipped.
func (c *Crawler) discoverLinks(doc *goquery.Document, page *url.URL, docHost, packageName, modName string) []string {
	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !followableHref(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := page.ResolveReference(ref)
		if resolved.Host != docHost {
			return
		}
		if !strings.Contains(resolved.Path, packageName) && !strings.Contains(resolved.Path, modName) {
			return
		}
		if shouldSkipURL(resolved) {
			return
		}
		resolved.Fragment = ""
		resolved.RawQuery = ""
		out = append(out, resolved.String())
	})
	return out
}

// followableHref reports whether a raw href is a relative documentation link
// worth resolving.
func followableHref(href string) bool {
	if href == "" || strings.Contains(href, "://") || strings.HasPrefix(href, "#") {
		return false
	}
	if strings.HasPrefix(href, "./") || strings.HasPrefix(href, "../") {
		return true
	}
	if strings.HasPrefix(href, "/") {
		return false
	}
	trimmed := href
	if i := strings.IndexAny(trimmed, "#?"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.HasSuffix(trimmed, ".html")
}

// shouldSkipURL rejects source-view pages and item anchors that duplicate
// content from a page already in the frontier.
func shouldSkipURL(u *url.URL) bool {
	if strings.Contains(u.Path, "/src/") {
		return true
	}
	for _, f := range skipFragments {
		if strings.HasPrefix(u.Fragment, f) {
			return true
		}
	}
	return false
}

// extractContent concatenates the text of all documentation blocks on a page.
func extractContent(doc *goquery.Document) string {
	var parts []string
	seen := map[string]bool{}
	for _, selector := range contentSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			if text != "" && !seen[text] {
				seen[text] = true
				parts = append(parts, text)
			}
		})
	}
	return strings.Join(parts, "\n\n")
}

// extractVersion determines the concrete documentation version: prefer the
// page's version element, fall back to the version path segment of the URL
// the host redirected to.
func extractVersion(doc *goquery.Document, page *url.URL) string {
	if v := strings.TrimSpace(doc.Find(".version").First().Text()); v != "" {
		return v
	}
	parts := strings.Split(page.String(), "/")
	if len(parts) >= 3 {
		seg := parts[len(parts)-3]
		if seg != "latest" && strings.ContainsAny(seg, "0123456789") {
			return seg
		}
	}
	return ""
}

// docPath is the stored document path: the URL with the host prefix removed.
func docPath(u *url.URL) string {
	return u.Path
}

// normalizeKey is the visited-set key for a URL: fragment and query dropped.
func normalizeKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawQuery = ""
	return u.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
