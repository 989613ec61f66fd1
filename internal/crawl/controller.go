package crawl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldstone/shopsync/internal/catalog"
	"github.com/fieldstone/shopsync/internal/metrics"
)

// Config holds the settings for a crawl session.
type Config struct {
	MaxDepth     int
	MaxPages     int
	IncludePaths []string
	ExcludePaths []string
	// SnapshotPrefix is prepended to snapshot object paths when a snapshot
	// store is configured.
	SnapshotPrefix string
	// Sleep pauses between fetches in CrawlList. Overridable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Controller walks a website depth-first under depth/page/path constraints,
// classifying pages as category (link-bearing) or leaf (content-bearing).
// One Crawl call owns one fetch session and one visited set; the Controller
// itself carries no run state and may be reused.
type Controller struct {
	cfg       Config
	fetcher   catalog.PageFetcher
	extractor catalog.ContentExtractor
	snapshots catalog.SnapshotStore
	norm      *Normalizer
	filter    *PathFilter
	logger    *zap.Logger
}

// crawlRun is the run-scoped state for a single Crawl invocation.
type crawlRun struct {
	host    string
	visited map[string]struct{}
	fetched int
	pages   []catalog.PageRecord
}

// New constructs a Controller. The snapshot store may be nil.
func New(
	cfg Config,
	fetcher catalog.PageFetcher,
	extractor catalog.ContentExtractor,
	snapshots catalog.SnapshotStore,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = defaultSleep
	}
	return &Controller{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		snapshots: snapshots,
		norm:      NewNormalizer(logger),
		filter:    NewPathFilter(cfg.IncludePaths, cfg.ExcludePaths),
		logger:    logger,
	}
}

// Crawl traverses the site reachable from startURL and returns the leaf pages
// found plus the number of pages fetched, category pages included. The fetch
// session is released unconditionally, including when the traversal is
// abandoned mid-run. Per-URL fetch and parse errors are contained and logged;
// only a session that fails to open aborts the run.
func (c *Controller) Crawl(ctx context.Context, startURL string) ([]catalog.PageRecord, int, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, 0, fmt.Errorf("parse start url %q: %w", startURL, err)
	}

	session, err := c.fetcher.Open(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("open fetch session: %w", err)
	}
	defer c.closeSession(session)

	run := &crawlRun{
		host:    strings.ToLower(start.Host),
		visited: make(map[string]struct{}),
	}
	c.visit(ctx, run, session, catalog.CrawlTarget{URL: startURL})

	c.logger.Info("crawl finished",
		zap.String("start_url", startURL),
		zap.Int("pages_fetched", run.fetched),
		zap.Int("leaf_pages", len(run.pages)),
	)
	return run.pages, run.fetched, nil
}

// CrawlList fetches each URL as a single-page crawl with no recursion,
// pausing between fetches. URLs that fail to fetch or parse are skipped; the
// returned count covers every fetch attempted before an interruption.
func (c *Controller) CrawlList(ctx context.Context, urls []string, delay time.Duration) ([]catalog.PageRecord, int, error) {
	session, err := c.fetcher.Open(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("open fetch session: %w", err)
	}
	defer c.closeSession(session)

	var pages []catalog.PageRecord
	fetched := 0
	for i, raw := range urls {
		if i > 0 && delay > 0 {
			if err := c.cfg.Sleep(ctx, delay); err != nil {
				return pages, fetched, nil
			}
		}
		fetched++
		page, _, ok := c.fetchOne(ctx, session, raw)
		if !ok {
			continue
		}
		pages = append(pages, page)
	}
	return pages, fetched, nil
}

// visit processes one URL and recurses into its in-bound links, sequentially
// so the shared visited set and page counter stay race-free without locking.
func (c *Controller) visit(ctx context.Context, run *crawlRun, session catalog.Session, target catalog.CrawlTarget) {
	if ctx.Err() != nil {
		return
	}
	// Bounds and the visited set are checked immediately before the fetch so
	// the page cap is never overshot, even with links queued eagerly.
	if target.Depth >= c.cfg.MaxDepth || run.fetched >= c.cfg.MaxPages {
		metrics.PagesSkipped.Inc()
		return
	}
	key := c.norm.Key(target.URL)
	if _, seen := run.visited[target.URL]; seen {
		metrics.PagesSkipped.Inc()
		return
	}
	if _, seen := run.visited[key]; seen {
		metrics.PagesSkipped.Inc()
		return
	}
	if !c.filter.ShouldVisit(target.URL, run.fetched) {
		metrics.PagesSkipped.Inc()
		return
	}

	run.visited[target.URL] = struct{}{}
	run.visited[key] = struct{}{}
	run.fetched++

	page, html, ok := c.fetchOne(ctx, session, target.URL)
	if !ok {
		return
	}

	if page.IsLeaf {
		run.pages = append(run.pages, page)
		c.snapshot(ctx, key, page.URL, html)
		return
	}
	for _, link := range page.Links {
		if !c.sameHost(run.host, link) {
			continue
		}
		c.visit(ctx, run, session, catalog.CrawlTarget{URL: link, Depth: target.Depth + 1})
	}
}

// fetchOne fetches and extracts a single URL, containing any error. The raw
// markup is returned alongside the record for snapshotting.
func (c *Controller) fetchOne(ctx context.Context, session catalog.Session, rawURL string) (catalog.PageRecord, string, bool) {
	res, err := session.Fetch(ctx, rawURL)
	if err != nil {
		metrics.CrawlErrors.Inc()
		c.logger.Warn("fetch failed", zap.String("url", rawURL), zap.Error(err))
		return catalog.PageRecord{}, "", false
	}
	metrics.PagesFetched.Inc()

	pageURL := res.FinalURL
	if pageURL == "" {
		pageURL = rawURL
	}
	page, err := c.extractor.Extract(res.HTML, pageURL)
	if err != nil {
		metrics.CrawlErrors.Inc()
		c.logger.Warn("content extraction failed", zap.String("url", rawURL), zap.Error(err))
		return catalog.PageRecord{}, "", false
	}
	c.logger.Debug("page classified",
		zap.String("url", pageURL),
		zap.Bool("is_leaf", page.IsLeaf),
		zap.Int("links", len(page.Links)),
	)
	return page, res.HTML, true
}

// snapshot persists the raw markup of a leaf page, best effort.
func (c *Controller) snapshot(ctx context.Context, key, pageURL, html string) {
	if c.snapshots == nil {
		return
	}
	sum := sha256.Sum256([]byte(key))
	path := hex.EncodeToString(sum[:]) + ".html"
	if prefix := strings.Trim(c.cfg.SnapshotPrefix, "/"); prefix != "" {
		path = prefix + "/" + path
	}
	uri, err := c.snapshots.Put(ctx, path, "text/html; charset=utf-8", []byte(html))
	if err != nil {
		c.logger.Warn("snapshot write failed", zap.String("url", pageURL), zap.Error(err))
		return
	}
	c.logger.Debug("snapshot stored", zap.String("url", pageURL), zap.String("uri", uri))
}

func (c *Controller) sameHost(host, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func (c *Controller) closeSession(session catalog.Session) {
	if err := session.Close(); err != nil {
		c.logger.Warn("fetch session close failed", zap.Error(err))
	}
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
