package crawl

import (
	"net/url"
	"strings"
)

// PathFilter decides whether a URL is eligible for traversal based on
// include/exclude path lists. Include matching is a segment-aware path prefix
// test; exclude matching is a deliberately looser substring test so a token
// like "blog/" catches any path containing it.
type PathFilter struct {
	include []string
	exclude []string
}

// NewPathFilter builds a filter. Entries are matched case-insensitively;
// include entries are treated as paths anchored at the site root.
func NewPathFilter(include, exclude []string) *PathFilter {
	f := &PathFilter{}
	for _, inc := range include {
		inc = strings.ToLower(strings.Trim(strings.TrimSpace(inc), "/"))
		if inc != "" {
			f.include = append(f.include, "/"+inc)
		}
	}
	for _, exc := range exclude {
		exc = strings.ToLower(strings.TrimSpace(exc))
		if exc != "" {
			f.exclude = append(f.exclude, exc)
		}
	}
	return f
}

// ShouldVisit reports whether rawURL may be traversed. visitedCount is the
// number of pages fetched so far in the run; when include paths are configured
// the very first URL is always allowed so the crawl can bootstrap from a start
// page that does not itself match an include entry.
func (f *PathFilter) ShouldVisit(rawURL string, visitedCount int) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	if path == "" {
		path = "/"
	}

	if len(f.include) > 0 {
		if visitedCount == 0 {
			return true
		}
		for _, prefix := range f.include {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
		}
		return false
	}

	for _, token := range f.exclude {
		if strings.Contains(path, token) {
			return false
		}
	}
	return true
}
