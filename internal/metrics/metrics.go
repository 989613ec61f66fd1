// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched tracks pages fetched through a crawl session.
	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopsync_pages_fetched_total",
		Help: "The total number of pages fetched.",
	})
	// PagesSkipped tracks URLs skipped by bounds, filters, or the visited set.
	PagesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopsync_pages_skipped_total",
		Help: "The total number of URLs skipped before fetching.",
	})
	// CrawlErrors tracks per-URL fetch or parse failures during traversal.
	CrawlErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopsync_crawl_errors_total",
		Help: "The total number of URLs dropped due to fetch or parse errors.",
	})
	// ProductsExtracted tracks pages successfully turned into product records.
	ProductsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopsync_products_extracted_total",
		Help: "The total number of product records extracted.",
	})
	// ExtractFailures tracks pages that exhausted extraction retries.
	ExtractFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopsync_extract_failures_total",
		Help: "The total number of pages that failed product extraction.",
	})
	// Uploads tracks products accepted by the catalog.
	Uploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopsync_uploads_total",
		Help: "The total number of products uploaded to the catalog.",
	})
	// UploadFailures tracks products the catalog rejected.
	UploadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopsync_upload_failures_total",
		Help: "The total number of products that failed to upload.",
	})
	// Retries tracks retry waits taken across extraction and publishing.
	Retries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopsync_retries_total",
		Help: "The total number of retries across pipeline stages.",
	})
)
