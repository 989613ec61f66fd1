// Package sites provides the per-site content extractors that turn raw
// markup into normalized page records.
package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/fieldstone/shopsync/internal/catalog"
)

// Select returns the content extractor registered under name.
func Select(name string, logger *zap.Logger) (catalog.ContentExtractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "generic":
		return &Generic{logger: logger}, nil
	case "woocommerce":
		return &WooCommerce{logger: logger}, nil
	case "shopify":
		return &Shopify{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown site extractor %q", name)
	}
}

var whitespace = regexp.MustCompile(`\s+`)

// pageTitle returns the trimmed document title.
func pageTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// textContent flattens the readable text of the document, scripts and styles
// removed, whitespace collapsed.
func textContent(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, iframe").Remove()
	return strings.TrimSpace(whitespace.ReplaceAllString(body.Text(), " "))
}

// collectLinks gathers the deduplicated absolute hrefs of the document,
// resolved against base. Anchors, mailto/tel/javascript schemes, and
// unparsable hrefs are skipped.
func collectLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") ||
			strings.HasPrefix(lower, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		s := abs.String()
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		links = append(links, s)
	})
	return links
}
