// Package collyfetch implements PageFetcher over plain HTTP using gocolly,
// for sites that render server-side and need no browser.
package collyfetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/fieldstone/shopsync/internal/catalog"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements catalog.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Open returns a session backed by a clone of the base collector. Cloning
// keeps the pooled transport while isolating per-run callbacks.
func (f *Fetcher) Open(_ context.Context) (catalog.Session, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)
	return &session{cfg: f.cfg, collector: collector}, nil
}

type session struct {
	cfg       Config
	collector *colly.Collector
}

// Fetch executes a single HTTP GET.
func (s *session) Fetch(ctx context.Context, url string) (catalog.FetchResult, error) {
	var (
		result   catalog.FetchResult
		fetchErr error
	)
	collector := s.collector.Clone()
	collector.OnResponse(func(r *colly.Response) {
		result = catalog.FetchResult{
			HTML:     string(r.Body),
			FinalURL: r.Request.URL.String(),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return catalog.FetchResult{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return catalog.FetchResult{}, fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return catalog.FetchResult{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
	}
	if result.HTML == "" {
		return catalog.FetchResult{}, fmt.Errorf("no content found at %s", url)
	}
	return result, nil
}

// Close is a no-op; the pooled transport belongs to the parent fetcher.
func (s *session) Close() error { return nil }

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
