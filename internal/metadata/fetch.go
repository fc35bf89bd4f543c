package metadata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/types"
)

// Source provides raw metadata for a tab, normally the content script
// reached through the browser bridge.
type Source interface {
	RequestMetadata(ctx context.Context, tabID int) (json.RawMessage, error)
}

// Escalating per-attempt timeouts with short backoffs between attempts.
var (
	attemptTimeouts = []time.Duration{1200 * time.Millisecond, 2 * time.Second, 3200 * time.Millisecond}
	attemptBackoffs = []time.Duration{150 * time.Millisecond, 350 * time.Millisecond}
)

// Fetcher obtains metadata for a tab with bounded retries against the
// content script and a page-scrape fallback. Fetch never fails: when every
// avenue is exhausted it returns best-available partial metadata.
type Fetcher struct {
	source Source

	// scrape is swappable for tests; defaults to Scrape.
	scrape func(url string) (types.Metadata, error)
}

// NewFetcher creates a Fetcher over the given source.
func NewFetcher(source Source) *Fetcher {
	return &Fetcher{source: source, scrape: Scrape}
}

// Fetch resolves metadata for the tab.
func (f *Fetcher) Fetch(ctx context.Context, tab types.Tab) types.Metadata {
	for i, timeout := range attemptTimeouts {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		raw, err := f.source.RequestMetadata(attemptCtx, tab.ID)
		cancel()
		if err == nil && len(raw) > 0 {
			return Normalize(raw)
		}
		if err != nil {
			applog.Warn("metadata.attempt", "tabId", tab.ID, "attempt", i+1, "err", err)
		}
		if ctx.Err() != nil {
			break
		}
		if i < len(attemptBackoffs) {
			select {
			case <-time.After(attemptBackoffs[i]):
			case <-ctx.Done():
			}
		}
	}

	if meta, err := f.scrape(tab.URL); err == nil {
		applog.Info("metadata.scraped", "tabId", tab.ID)
		if meta.Title == "" {
			meta.Title = tab.Title
		}
		return meta
	} else {
		applog.Warn("metadata.scrape", "tabId", tab.ID, "err", err)
	}

	// Last resort: whatever the tab itself tells us.
	return types.Metadata{Title: tab.Title, Keywords: []string{}}
}
