package sites

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/fieldstone/shopsync/internal/catalog"
)

// WooCommerce handles storefronts built on the WooCommerce theme markup.
type WooCommerce struct {
	logger *zap.Logger
}

// Extract implements catalog.ContentExtractor. Single-product pages carry a
// `single-product` body class or a product summary block; everything else is
// treated as a category page whose product grid and navigation yield links.
func (w *WooCommerce) Extract(html string, pageURL string) (catalog.PageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return catalog.PageRecord{}, fmt.Errorf("parse html for %s: %w", pageURL, err)
	}

	record := catalog.PageRecord{
		URL:    pageURL,
		Title:  pageTitle(doc),
		IsLeaf: w.isProductPage(doc),
	}
	if record.IsLeaf {
		record.Content = w.productContent(doc)
		return record, nil
	}
	record.Links = collectLinks(doc, pageURL)
	return record, nil
}

func (w *WooCommerce) isProductPage(doc *goquery.Document) bool {
	if class, ok := doc.Find("body").Attr("class"); ok {
		if strings.Contains(class, "single-product") {
			return true
		}
	}
	return doc.Find("div.product div.summary").Length() > 0
}

// productContent prefers the product summary and description blocks over the
// whole body so navigation chrome stays out of the extraction payload.
func (w *WooCommerce) productContent(doc *goquery.Document) string {
	var parts []string
	doc.Find("div.product div.summary, #tab-description, .woocommerce-product-details__short-description, .product_meta").
		Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(whitespace.ReplaceAllString(s.Text(), " "))
			if text != "" {
				parts = append(parts, text)
			}
		})
	if len(parts) == 0 {
		return textContent(doc)
	}
	return strings.Join(parts, "\n")
}
