package metadata

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"github.com/lotas/tabgruppen/internal/types"
)

var skipPrefixes = []string{"about:", "moz-extension:", "chrome-extension:", "file:", "chrome:", "resource:", "data:"}

const maxDescriptionLen = 500

// Scrape fetches the page and extracts metadata server-side. Used as the
// fallback when the content script cannot answer (tab discarded, script not
// injected yet). Returns an error for non-HTTP URLs or extraction failures.
func Scrape(url string) (types.Metadata, error) {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(url, prefix) {
			return types.Metadata{}, fmt.Errorf("skipping non-HTTP URL: %s", url)
		}
	}

	client := &http.Client{Timeout: 15 * time.Second}
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return types.Metadata{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	resp, err := client.Do(req)
	if err != nil {
		return types.Metadata{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return types.Metadata{}, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, nil)
	if err != nil {
		return types.Metadata{}, fmt.Errorf("extract content from %s: %w", url, err)
	}

	desc := article.Excerpt
	if desc == "" {
		desc = article.TextContent
	}
	desc = truncate(strings.TrimSpace(desc), maxDescriptionLen)

	return types.Metadata{
		Title:       article.Title,
		Channel:     strings.TrimSpace(article.Byline),
		Description: desc,
		Keywords:    []string{},
	}, nil
}

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
