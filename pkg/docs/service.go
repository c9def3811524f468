// Package docs fetches the reference documents an issue links to, so the
// planning prompt can embed them alongside the issue text.
package docs

import (
	"context"
	"log/slog"

	"github.com/tamma-ai/tamma/pkg/config"
)

// defaultAllowedDomains guards fetches when no allowlist is configured.
var defaultAllowedDomains = []string{"github.com", "raw.githubusercontent.com"}

// Doc is one fetched reference document.
type Doc struct {
	URL       string
	Content   string
	Truncated bool
}

// Service extracts document URLs from issue text and fetches them. Results
// are cached with a TTL so repeated planning passes over the same issue do
// not refetch.
type Service struct {
	fetcher *Fetcher
	cache   *Cache
	cfg     *config.DocsConfig
	logger  *slog.Logger
}

// NewService creates a docs service. token authenticates GitHub fetches and
// may be empty.
func NewService(cfg *config.DocsConfig, token string) *Service {
	return &Service{
		fetcher: NewFetcher(token),
		cache:   NewCache(cfg.CacheTTL),
		cfg:     cfg,
		logger:  slog.Default().With("component", "docs"),
	}
}

// FetchReferenced extracts document URLs from text and fetches up to
// MaxDocs of them. Disallowed URLs and fetch failures are logged and
// skipped: document enrichment is best-effort.
func (s *Service) FetchReferenced(ctx context.Context, text string) []Doc {
	if s == nil || !s.cfg.Enabled {
		return nil
	}
	allowed := s.cfg.AllowedDomains
	if len(allowed) == 0 {
		allowed = defaultAllowedDomains
	}

	var out []Doc
	for _, docURL := range ExtractURLs(text) {
		if len(out) >= s.cfg.MaxDocs {
			break
		}
		if err := ValidateURL(docURL, allowed); err != nil {
			s.logger.Debug("skipping referenced URL", "url", docURL, "error", err)
			continue
		}
		normalized := ConvertToRawURL(docURL)
		if doc, ok := s.cache.Get(normalized); ok {
			out = append(out, doc)
			continue
		}
		content, truncated, err := s.fetcher.Fetch(ctx, docURL, s.cfg.MaxDocBytes)
		if err != nil {
			s.logger.Warn("document fetch failed", "url", docURL, "error", err)
			continue
		}
		doc := Doc{URL: docURL, Content: content, Truncated: truncated}
		s.cache.Set(normalized, doc)
		out = append(out, doc)
	}
	return out
}

// PurgeExpired drops expired cached documents, returning the count.
func (s *Service) PurgeExpired() int {
	return s.cache.PurgeExpired()
}
