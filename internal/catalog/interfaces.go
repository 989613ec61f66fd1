package catalog

import (
	"context"
	"time"
)

// FetchResult is the raw markup pulled from one rendered page.
type FetchResult struct {
	HTML     string
	FinalURL string
}

// Session is one open browser (or HTTP client) owned by a single crawl run.
type Session interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
	Close() error
}

// PageFetcher opens fetch sessions. One session serves a whole crawl run and
// must be closed by the caller.
type PageFetcher interface {
	Open(ctx context.Context) (Session, error)
}

// ContentExtractor turns raw markup into a normalized PageRecord. Site
// specific implementations decide leaf-ness and discover absolute links.
type ContentExtractor interface {
	Extract(html string, pageURL string) (PageRecord, error)
}

// ProductExtractor turns a leaf PageRecord into a structured ProductRecord.
// Implementations may return rate-limit shaped errors that the retry policy
// recognizes.
type ProductExtractor interface {
	Process(ctx context.Context, page PageRecord) (ProductRecord, error)
}

// CatalogPublisher uploads products and resolves category/tag names to IDs.
type CatalogPublisher interface {
	TestConnection(ctx context.Context) error
	GetOrCreateCategory(ctx context.Context, name string) (int64, error)
	GetOrCreateTag(ctx context.Context, name string) (int64, error)
	Upload(ctx context.Context, product ProductRecord) (int64, error)
}

// SnapshotStore persists raw page artifacts and returns a URI.
type SnapshotStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// EventPublisher pushes pipeline events to Pub/Sub (or similar).
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
