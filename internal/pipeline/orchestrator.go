// Package pipeline wires crawl, extraction, and publishing into one run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldstone/shopsync/internal/batch"
	"github.com/fieldstone/shopsync/internal/catalog"
	"github.com/fieldstone/shopsync/internal/crawl"
	"github.com/fieldstone/shopsync/internal/metrics"
)

// Config holds the per-stage knobs of one pipeline.
type Config struct {
	ExtractBatchSize int
	ExtractDelay     time.Duration
	ExtractPolicy    batch.Policy
	PublishBatchSize int
	PublishDelay     time.Duration
	PublishPolicy    batch.Policy
	// ListFetchDelay is the pause between fetches when running an explicit
	// URL list instead of a traversal.
	ListFetchDelay time.Duration
	// EventTopic, when non-empty, receives a run-completed event.
	EventTopic string
}

// Orchestrator drives crawl, extract, and publish, siphoning failures off at
// each boundary instead of aborting. It never returns an error past its own
// boundary unless the crawl session itself cannot be opened.
type Orchestrator struct {
	crawler   *crawl.Controller
	extractor catalog.ProductExtractor
	publisher catalog.CatalogPublisher
	events    catalog.EventPublisher
	clock     catalog.Clock
	sleep     batch.SleepFunc
	logger    *zap.Logger
	cfg       Config
}

// New constructs an Orchestrator. The event publisher may be nil; sleep and
// logger fall back to sane defaults.
func New(
	crawler *crawl.Controller,
	extractor catalog.ProductExtractor,
	publisher catalog.CatalogPublisher,
	events catalog.EventPublisher,
	clock catalog.Clock,
	sleep batch.SleepFunc,
	logger *zap.Logger,
	cfg Config,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sleep == nil {
		sleep = batch.Sleep
	}
	if cfg.ExtractBatchSize <= 0 {
		cfg.ExtractBatchSize = 3
	}
	if cfg.PublishBatchSize <= 0 {
		cfg.PublishBatchSize = 3
	}
	if cfg.ExtractDelay <= 0 {
		cfg.ExtractDelay = batch.DefaultDelay
	}
	if cfg.PublishDelay <= 0 {
		cfg.PublishDelay = batch.DefaultDelay
	}
	return &Orchestrator{
		crawler:   crawler,
		extractor: extractor,
		publisher: publisher,
		events:    events,
		clock:     clock,
		sleep:     sleep,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run crawls from startURL and pushes everything found through extraction and
// publishing.
func (o *Orchestrator) Run(ctx context.Context, startURL string) (catalog.Report, error) {
	started := o.clock.Now()
	pages, fetched, err := o.crawler.Crawl(ctx, startURL)
	if err != nil {
		return catalog.Report{}, fmt.Errorf("crawl %s: %w", startURL, err)
	}
	report := o.process(ctx, pages)
	report.StartURL = startURL
	report.PagesCrawled = fetched
	o.finish(ctx, &report, started)
	return report, nil
}

// RunList fetches an explicit URL list as depth-1 single-page crawls and runs
// the same downstream stages.
func (o *Orchestrator) RunList(ctx context.Context, urls []string) (catalog.Report, error) {
	started := o.clock.Now()
	pages, fetched, err := o.crawler.CrawlList(ctx, urls, o.cfg.ListFetchDelay)
	if err != nil {
		return catalog.Report{}, fmt.Errorf("fetch url list: %w", err)
	}
	report := o.process(ctx, pages)
	report.PagesCrawled = fetched
	o.finish(ctx, &report, started)
	return report, nil
}

// Replay re-runs extraction and publishing over a previously failed page set.
// Same machinery as Run, parameterized by a different input source.
func (o *Orchestrator) Replay(ctx context.Context, pages []catalog.PageRecord) (catalog.Report, error) {
	started := o.clock.Now()
	report := o.process(ctx, pages)
	o.finish(ctx, &report, started)
	return report, nil
}

func (o *Orchestrator) process(ctx context.Context, pages []catalog.PageRecord) catalog.Report {
	report := catalog.Report{PagesCrawled: len(pages)}

	products, failedPages := o.extract(ctx, pages)
	report.Products = products
	report.FailedPages = failedPages

	uploaded, failedUploads := o.publish(ctx, products)
	report.Uploaded = uploaded
	report.FailedUploads = failedUploads
	return report
}

// extract fans the product extractor out over the crawled pages.
func (o *Orchestrator) extract(ctx context.Context, pages []catalog.PageRecord) ([]catalog.ProductRecord, []catalog.PageRecord) {
	res := batch.Run(ctx, batch.Config{
		Size:   o.cfg.ExtractBatchSize,
		Delay:  o.cfg.ExtractDelay,
		Logger: o.logger.Named("extract"),
		Sleep:  o.sleep,
	}, pages, func(ctx context.Context, page catalog.PageRecord) (catalog.ProductRecord, error) {
		return batch.Retry(ctx, o.cfg.ExtractPolicy, o.sleep, o.logger, "extract",
			func(ctx context.Context) (catalog.ProductRecord, error) {
				return o.extractor.Process(ctx, page)
			})
	})

	metrics.ProductsExtracted.Add(float64(len(res.Successes)))
	metrics.ExtractFailures.Add(float64(len(res.Failures)))

	failed := make([]catalog.PageRecord, 0, len(res.Failures))
	for _, f := range res.Failures {
		o.logger.Warn("page failed extraction", zap.String("url", f.Input.URL), zap.Error(f.Err))
		failed = append(failed, f.Input)
	}
	return res.Successes, failed
}

// publish validates and uploads extracted products. Products missing required
// fields fail immediately; no retry is attempted for them.
func (o *Orchestrator) publish(ctx context.Context, products []catalog.ProductRecord) ([]catalog.UploadResult, []catalog.UploadFailure) {
	res := batch.Run(ctx, batch.Config{
		Size:   o.cfg.PublishBatchSize,
		Delay:  o.cfg.PublishDelay,
		Logger: o.logger.Named("publish"),
		Sleep:  o.sleep,
	}, products, func(ctx context.Context, product catalog.ProductRecord) (catalog.UploadResult, error) {
		if !product.Complete() {
			return catalog.UploadResult{}, catalog.Fatal(
				fmt.Errorf("product %q missing required name/sku/price", product.SourceURL))
		}
		return batch.Retry(ctx, o.cfg.PublishPolicy, o.sleep, o.logger, "publish",
			func(ctx context.Context) (catalog.UploadResult, error) {
				id, err := o.publisher.Upload(ctx, product)
				if err != nil {
					return catalog.UploadResult{}, err
				}
				return catalog.UploadResult{SKU: product.SKU, RemoteID: id}, nil
			})
	})

	metrics.Uploads.Add(float64(len(res.Successes)))
	metrics.UploadFailures.Add(float64(len(res.Failures)))

	failed := make([]catalog.UploadFailure, 0, len(res.Failures))
	for _, f := range res.Failures {
		o.logger.Warn("product failed upload", zap.String("sku", f.Input.SKU), zap.Error(f.Err))
		failed = append(failed, catalog.UploadFailure{Product: f.Input, Error: f.Err.Error()})
	}
	return res.Successes, failed
}

// finish stamps the report and emits the run-completed event.
func (o *Orchestrator) finish(ctx context.Context, report *catalog.Report, started time.Time) {
	report.RunID = uuid.NewString()
	report.Started = started
	report.Finished = o.clock.Now()

	o.logger.Info("pipeline run finished",
		zap.String("run_id", report.RunID),
		zap.Int("pages", report.PagesCrawled),
		zap.Int("products", len(report.Products)),
		zap.Int("uploaded", len(report.Uploaded)),
		zap.Int("failed_pages", len(report.FailedPages)),
		zap.Int("failed_uploads", len(report.FailedUploads)),
	)

	if o.events == nil || o.cfg.EventTopic == "" {
		return
	}
	payload := map[string]any{
		"run_id":         report.RunID,
		"start_url":      report.StartURL,
		"pages":          report.PagesCrawled,
		"products":       len(report.Products),
		"uploaded":       len(report.Uploaded),
		"failed_pages":   len(report.FailedPages),
		"failed_uploads": len(report.FailedUploads),
		"finished_at":    report.Finished.Format(time.RFC3339),
	}
	if _, err := o.events.Publish(ctx, o.cfg.EventTopic, payload); err != nil {
		o.logger.Warn("run event publish failed", zap.Error(err))
	}
}
