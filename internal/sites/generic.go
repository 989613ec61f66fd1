package sites

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/fieldstone/shopsync/internal/catalog"
)

// Generic classifies pages with site-agnostic heuristics: a page looks like a
// product when it declares itself one through Open Graph or schema.org
// markup, or carries an add-to-cart affordance.
type Generic struct {
	logger *zap.Logger
}

// Extract implements catalog.ContentExtractor.
func (g *Generic) Extract(html string, pageURL string) (catalog.PageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return catalog.PageRecord{}, fmt.Errorf("parse html for %s: %w", pageURL, err)
	}

	record := catalog.PageRecord{
		URL:    pageURL,
		Title:  pageTitle(doc),
		IsLeaf: looksLikeProduct(doc),
	}
	if record.IsLeaf {
		record.Content = textContent(doc)
		return record, nil
	}
	record.Links = collectLinks(doc, pageURL)
	g.logger.Debug("category page",
		zap.String("url", pageURL),
		zap.Int("links", len(record.Links)),
	)
	return record, nil
}

func looksLikeProduct(doc *goquery.Document) bool {
	if og, ok := doc.Find(`meta[property="og:type"]`).Attr("content"); ok {
		if strings.EqualFold(strings.TrimSpace(og), "product") {
			return true
		}
	}
	if doc.Find(`[itemtype*="schema.org/Product"]`).Length() > 0 {
		return true
	}
	selectors := []string{
		`button[name="add-to-cart"]`,
		`.add-to-cart`,
		`.add_to_cart_button`,
		`form[action*="/cart/add"]`,
	}
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
