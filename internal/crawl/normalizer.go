// Package crawl implements the bounded graph traversal over a target site.
package crawl

import (
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Normalizer canonicalizes URLs into dedup keys.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer builds a Normalizer. A nil logger is replaced with a no-op.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger}
}

// Key canonicalizes a URL to a dedup key: scheme, host, and path lowercased,
// query, fragment, and trailing slashes stripped. A URL that fails to parse is
// returned unchanged; normalization must never abort a crawl.
func (n *Normalizer) Key(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		n.logger.Warn("url normalization failed", zap.String("url", raw), zap.Error(err))
		return raw
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(strings.ToLower(u.Scheme))
		b.WriteString("://")
	}
	b.WriteString(strings.ToLower(u.Host))
	b.WriteString(strings.ToLower(path))
	return b.String()
}
