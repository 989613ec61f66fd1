// Package headless fetches rendered pages through a browser.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/fieldstone/shopsync/internal/catalog"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
}

// Fetcher implements catalog.PageFetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a headless fetcher backed by chromedp.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger}
}

// Open launches one browser instance. The returned session must be closed by
// the caller; it owns the allocator and browser contexts for the run.
func (f *Fetcher) Open(ctx context.Context) (catalog.Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	select {
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, ctx.Err()
	default:
	}

	return &session{
		fetcher:       f,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type session struct {
	fetcher       *Fetcher
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// Fetch navigates a fresh tab and returns the fully rendered DOM plus the URL
// the navigation settled on. A navigation timeout is reported distinctly from
// an empty document.
func (s *session) Fetch(ctx context.Context, url string) (catalog.FetchResult, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.fetcher.cfg.NavigationTimeout)
	defer cancelTask()

	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		s.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return catalog.FetchResult{}, fmt.Errorf("navigation timeout after %s for %s: %w",
				s.fetcher.cfg.NavigationTimeout, url, err)
		}
		return catalog.FetchResult{}, fmt.Errorf("chromedp run: %w", err)
	}
	if html == "" {
		return catalog.FetchResult{}, fmt.Errorf("no content found at %s", url)
	}
	return catalog.FetchResult{HTML: html, FinalURL: finalURL}, nil
}

// Close tears down the browser and allocator contexts.
func (s *session) Close() error {
	s.browserCancel()
	s.allocCancel()
	return nil
}

func (s *session) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua := s.fetcher.cfg.UserAgent; ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
