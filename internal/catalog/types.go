// Package catalog defines core types shared across subsystems.
package catalog

import "time"

// CrawlTarget is a discovered URL queued for traversal. It is created when a
// link is found and consumed exactly once by the crawl controller.
type CrawlTarget struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// PageRecord is the normalized form of one fetched page. Category pages carry
// discovered links; leaf pages carry the content handed to product extraction.
type PageRecord struct {
	URL     string   `json:"url"`
	Title   string   `json:"title"`
	Content string   `json:"page_content"`
	IsLeaf  bool     `json:"is_leaf"`
	Links   []string `json:"discovered_links,omitempty"`
}

// ProductRecord holds the structured product fields uploaded to the catalog.
type ProductRecord struct {
	Name        string            `json:"name"`
	SKU         string            `json:"sku"`
	Price       string            `json:"price"`
	Description string            `json:"description,omitempty"`
	Categories  []string          `json:"categories,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Specs       map[string]string `json:"specifications,omitempty"`
	SourceURL   string            `json:"source_url,omitempty"`
}

// Complete reports whether the record carries the fields the catalog requires.
func (p ProductRecord) Complete() bool {
	return p.Name != "" && p.SKU != "" && p.Price != ""
}

// UploadResult records a product accepted by the catalog.
type UploadResult struct {
	SKU      string `json:"sku"`
	RemoteID int64  `json:"remote_id"`
}

// UploadFailure records a product the catalog rejected, with the upstream
// error detail attached for later inspection.
type UploadFailure struct {
	Product ProductRecord `json:"product"`
	Error   string        `json:"error"`
}

// Report is the final, immutable outcome of one pipeline run. Failure lists
// are the caller's signal to inspect or replay later.
type Report struct {
	RunID    string `json:"run_id"`
	StartURL string `json:"start_url,omitempty"`
	// PagesCrawled counts every page fetched, category pages included, not
	// just the leaves that reached extraction.
	PagesCrawled  int             `json:"pages_crawled"`
	Products      []ProductRecord `json:"products"`
	Uploaded      []UploadResult  `json:"uploaded"`
	FailedPages   []PageRecord    `json:"failed_pages"`
	FailedUploads []UploadFailure `json:"failed_uploads"`
	Started       time.Time       `json:"started_at"`
	Finished      time.Time       `json:"finished_at"`
}
