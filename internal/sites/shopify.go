package sites

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/fieldstone/shopsync/internal/catalog"
)

// Shopify handles Shopify storefronts, which put products under /products/
// and expose an Open Graph product type.
type Shopify struct {
	logger *zap.Logger
}

// Extract implements catalog.ContentExtractor.
func (s *Shopify) Extract(html string, pageURL string) (catalog.PageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return catalog.PageRecord{}, fmt.Errorf("parse html for %s: %w", pageURL, err)
	}

	record := catalog.PageRecord{
		URL:    pageURL,
		Title:  pageTitle(doc),
		IsLeaf: s.isProductPage(doc, pageURL),
	}
	if record.IsLeaf {
		record.Content = textContent(doc)
		return record, nil
	}
	record.Links = collectLinks(doc, pageURL)
	return record, nil
}

func (s *Shopify) isProductPage(doc *goquery.Document, pageURL string) bool {
	if og, ok := doc.Find(`meta[property="og:type"]`).Attr("content"); ok {
		if strings.EqualFold(strings.TrimSpace(og), "product") {
			return true
		}
	}
	if doc.Find(`form[action*="/cart/add"]`).Length() > 0 {
		return true
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Path), "/products/")
}
