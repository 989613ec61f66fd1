package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldstone/shopsync/internal/batch"
	"github.com/fieldstone/shopsync/internal/catalog"
	"github.com/fieldstone/shopsync/internal/crawl"
	"github.com/fieldstone/shopsync/internal/events/memory"
)

type scriptedPage struct {
	isLeaf bool
	links  []string
}

type scriptedSession struct {
	mu    sync.Mutex
	pages map[string]scriptedPage
}

func (s *scriptedSession) Fetch(_ context.Context, url string) (catalog.FetchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[url]; !ok {
		return catalog.FetchResult{}, errors.New("unknown url " + url)
	}
	return catalog.FetchResult{HTML: url, FinalURL: url}, nil
}

func (s *scriptedSession) Close() error { return nil }

type scriptedFetcher struct{ session *scriptedSession }

func (f *scriptedFetcher) Open(_ context.Context) (catalog.Session, error) {
	return f.session, nil
}

type scriptedExtractor struct{ pages map[string]scriptedPage }

func (e *scriptedExtractor) Extract(html, pageURL string) (catalog.PageRecord, error) {
	page := e.pages[html]
	return catalog.PageRecord{
		URL:     pageURL,
		Content: "content",
		IsLeaf:  page.isLeaf,
		Links:   page.links,
	}, nil
}

// stubProducts maps page URLs to extraction outcomes.
type stubProducts struct {
	mu    sync.Mutex
	fail  map[string]error
	calls map[string]int
}

func (s *stubProducts) Process(_ context.Context, page catalog.PageRecord) (catalog.ProductRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[page.URL]++
	if err, ok := s.fail[page.URL]; ok {
		return catalog.ProductRecord{}, err
	}
	return catalog.ProductRecord{
		Name:      "Product " + page.URL,
		SKU:       "SKU-" + page.URL,
		Price:     "9.99",
		SourceURL: page.URL,
	}, nil
}

type stubPublisher struct {
	mu     sync.Mutex
	fail   map[string]error
	nextID int64
	seen   []string
}

func (p *stubPublisher) TestConnection(_ context.Context) error { return nil }

func (p *stubPublisher) GetOrCreateCategory(_ context.Context, name string) (int64, error) {
	return 1, nil
}

func (p *stubPublisher) GetOrCreateTag(_ context.Context, name string) (int64, error) {
	return 1, nil
}

func (p *stubPublisher) Upload(_ context.Context, product catalog.ProductRecord) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.fail[product.SKU]; ok {
		return 0, err
	}
	p.nextID++
	p.seen = append(p.seen, product.SKU)
	return p.nextID, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func newTestOrchestrator(
	pages map[string]scriptedPage,
	products catalog.ProductExtractor,
	publisher *stubPublisher,
	events catalog.EventPublisher,
	cfg Config,
) *Orchestrator {
	session := &scriptedSession{pages: pages}
	crawler := crawl.New(
		crawl.Config{MaxDepth: 5, MaxPages: 50},
		&scriptedFetcher{session: session},
		&scriptedExtractor{pages: pages},
		nil,
		nil,
	)
	return New(crawler, products, publisher, events, fixedClock{now: time.Unix(1700000000, 0).UTC()}, noSleep, nil, cfg)
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	pages := map[string]scriptedPage{
		"https://shop.test/": {links: []string{
			"https://shop.test/item/1",
			"https://shop.test/item/2",
		}},
		"https://shop.test/item/1": {isLeaf: true},
		"https://shop.test/item/2": {isLeaf: true},
	}
	products := &stubProducts{}
	publisher := &stubPublisher{}
	events := memory.New()

	orch := newTestOrchestrator(pages, products, publisher, events, Config{EventTopic: "runs"})
	report, err := orch.Run(context.Background(), "https://shop.test/")
	require.NoError(t, err)

	require.Equal(t, "https://shop.test/", report.StartURL)
	require.NotEmpty(t, report.RunID)
	// The category page counts toward pages crawled even though only the two
	// leaves reach extraction.
	require.Equal(t, 3, report.PagesCrawled)
	require.Len(t, report.Products, 2)
	require.Len(t, report.Uploaded, 2)
	require.Empty(t, report.FailedPages)
	require.Empty(t, report.FailedUploads)

	msgs := events.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "runs", msgs[0].Topic)
}

func TestRunPartitionsExtractionFailures(t *testing.T) {
	t.Parallel()

	pages := map[string]scriptedPage{
		"https://shop.test/": {links: []string{
			"https://shop.test/item/1",
			"https://shop.test/item/2",
		}},
		"https://shop.test/item/1": {isLeaf: true},
		"https://shop.test/item/2": {isLeaf: true},
	}
	products := &stubProducts{fail: map[string]error{
		"https://shop.test/item/2": catalog.ErrNoProduct,
	}}
	publisher := &stubPublisher{}

	orch := newTestOrchestrator(pages, products, publisher, nil, Config{})
	report, err := orch.Run(context.Background(), "https://shop.test/")
	require.NoError(t, err)

	require.Equal(t, 3, report.PagesCrawled)
	require.Len(t, report.Products, 1)
	require.Len(t, report.Uploaded, 1)
	require.Len(t, report.FailedPages, 1)
	require.Equal(t, "https://shop.test/item/2", report.FailedPages[0].URL)
}

func TestRunRetriesTransientExtractionErrors(t *testing.T) {
	t.Parallel()

	pages := map[string]scriptedPage{
		"https://shop.test/item/1": {isLeaf: true},
	}

	var mu sync.Mutex
	attempts := 0
	flaky := &flakyProducts{mu: &mu, attempts: &attempts, failures: 2}
	publisher := &stubPublisher{}

	orch := newTestOrchestrator(pages, flaky, publisher, nil, Config{
		ExtractPolicy: batch.DefaultPolicy(),
	})
	report, err := orch.RunList(context.Background(), []string{"https://shop.test/item/1"})
	require.NoError(t, err)

	require.Len(t, report.Products, 1)
	require.Empty(t, report.FailedPages)
	require.Equal(t, 3, attempts)
}

type flakyProducts struct {
	mu       *sync.Mutex
	attempts *int
	failures int
}

func (f *flakyProducts) Process(_ context.Context, page catalog.PageRecord) (catalog.ProductRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.attempts++
	if *f.attempts <= f.failures {
		return catalog.ProductRecord{}, errors.New("temporarily unavailable")
	}
	return catalog.ProductRecord{Name: "n", SKU: "s", Price: "1", SourceURL: page.URL}, nil
}

func TestPublishRejectsIncompleteProductsWithoutRetry(t *testing.T) {
	t.Parallel()

	pages := map[string]scriptedPage{
		"https://shop.test/item/1": {isLeaf: true},
	}
	// Extraction yields a product with no price.
	products := &incompleteProducts{}
	publisher := &stubPublisher{}

	orch := newTestOrchestrator(pages, products, publisher, nil, Config{
		PublishPolicy: batch.DefaultPolicy(),
	})
	report, err := orch.RunList(context.Background(), []string{"https://shop.test/item/1"})
	require.NoError(t, err)

	require.Empty(t, report.Uploaded)
	require.Len(t, report.FailedUploads, 1)
	require.Contains(t, report.FailedUploads[0].Error, "missing required")
	require.Empty(t, publisher.seen)
}

type incompleteProducts struct{}

func (incompleteProducts) Process(_ context.Context, page catalog.PageRecord) (catalog.ProductRecord, error) {
	return catalog.ProductRecord{Name: "widget", SKU: "W-1", SourceURL: page.URL}, nil
}

func TestPublishPartitionsUploadFailures(t *testing.T) {
	t.Parallel()

	pages := map[string]scriptedPage{
		"https://shop.test/item/1": {isLeaf: true},
		"https://shop.test/item/2": {isLeaf: true},
	}
	products := &stubProducts{}
	publisher := &stubPublisher{fail: map[string]error{
		"SKU-https://shop.test/item/2": catalog.Fatal(errors.New("duplicate sku")),
	}}

	orch := newTestOrchestrator(pages, products, publisher, nil, Config{})
	report, err := orch.RunList(context.Background(), []string{
		"https://shop.test/item/1",
		"https://shop.test/item/2",
	})
	require.NoError(t, err)

	require.Len(t, report.Uploaded, 1)
	require.Len(t, report.FailedUploads, 1)
	require.Equal(t, "SKU-https://shop.test/item/2", report.FailedUploads[0].Product.SKU)
}

func TestStagesPauseNinetySecondsBetweenChunksByDefault(t *testing.T) {
	t.Parallel()

	products := &stubProducts{}
	publisher := &stubPublisher{}

	var mu sync.Mutex
	var slept []time.Duration
	recordSleep := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		slept = append(slept, d)
		return nil
	}

	session := &scriptedSession{}
	crawler := crawl.New(
		crawl.Config{MaxDepth: 5, MaxPages: 50},
		&scriptedFetcher{session: session},
		&scriptedExtractor{},
		nil,
		nil,
	)
	orch := New(crawler, products, publisher, nil, fixedClock{now: time.Unix(1700000000, 0).UTC()}, recordSleep, nil, Config{})

	// Four pages against the default chunk size of three: one inter-chunk
	// pause in extraction and one in publishing, both the 90s default.
	pages := []catalog.PageRecord{
		{URL: "https://shop.test/item/1", Content: "c", IsLeaf: true},
		{URL: "https://shop.test/item/2", Content: "c", IsLeaf: true},
		{URL: "https://shop.test/item/3", Content: "c", IsLeaf: true},
		{URL: "https://shop.test/item/4", Content: "c", IsLeaf: true},
	}
	report, err := orch.Replay(context.Background(), pages)
	require.NoError(t, err)
	require.Len(t, report.Products, 4)
	require.Len(t, report.Uploaded, 4)
	require.Equal(t, []time.Duration{90 * time.Second, 90 * time.Second}, slept)
}

func TestReplayReprocessesFailedPages(t *testing.T) {
	t.Parallel()

	products := &stubProducts{}
	publisher := &stubPublisher{}

	orch := newTestOrchestrator(nil, products, publisher, nil, Config{})
	failed := []catalog.PageRecord{
		{URL: "https://shop.test/item/1", Content: "c1", IsLeaf: true},
		{URL: "https://shop.test/item/2", Content: "c2", IsLeaf: true},
	}
	report, err := orch.Replay(context.Background(), failed)
	require.NoError(t, err)

	require.Equal(t, 2, report.PagesCrawled)
	require.Len(t, report.Products, 2)
	require.Len(t, report.Uploaded, 2)
	require.Empty(t, report.FailedPages)
	require.Empty(t, report.FailedUploads)
	require.NotEmpty(t, report.RunID)
	require.False(t, report.Finished.Before(report.Started))
}

func TestRunCrawlFailureAborts(t *testing.T) {
	t.Parallel()

	orch := New(
		crawl.New(crawl.Config{MaxDepth: 1, MaxPages: 1}, failingFetcher{}, &scriptedExtractor{}, nil, nil),
		&stubProducts{},
		&stubPublisher{},
		nil,
		fixedClock{now: time.Now()},
		noSleep,
		nil,
		Config{},
	)
	_, err := orch.Run(context.Background(), "https://shop.test/")
	require.Error(t, err)
	require.Contains(t, err.Error(), "crawl")
}

type failingFetcher struct{}

func (failingFetcher) Open(_ context.Context) (catalog.Session, error) {
	return nil, errors.New("no session")
}
