// Package metadata normalizes page metadata from the content-side scraper
// and implements the bounded-retry fetch policy with a server-side scrape
// fallback.
package metadata

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lotas/tabgruppen/internal/types"
)

// Normalize canonicalizes a raw scraper payload into a Metadata value.
// The scraper is loosely typed: fields may be missing, null, or carry the
// wrong type (youtubeCategory in particular arrives as a string or a
// number). Anything unusable becomes the zero shape, never an error.
func Normalize(raw json.RawMessage) types.Metadata {
	var m types.Metadata

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return m
	}

	m.Title = asString(fields["title"])
	m.Channel = asString(fields["channel"])
	m.Description = asString(fields["description"])
	m.Keywords = asStringSlice(fields["keywords"])
	m.YouTubeCategory = asCategory(fields["youtubeCategory"])
	return m
}

func asString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func asStringSlice(raw json.RawMessage) []string {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// asCategory accepts the platform category as a string or numeric code.
func asCategory(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return fmt.Sprintf("%.0f", n)
	}
	return ""
}
