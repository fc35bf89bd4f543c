// Package resolver maps video metadata to a category label through an
// ordered strategy pipeline. Resolution is a pure function of its inputs:
// absent or malformed metadata degrades to the fallback category, never to
// an error.
package resolver

import (
	"regexp"
	"sort"
	"strings"

	"github.com/lotas/tabgruppen/internal/types"
)

// Options configures one resolution.
type Options struct {
	AIEnabled         bool
	CategoryKeywords  map[string][]string
	ChannelMap        map[string]string
	FallbackCategory  string
	RequestedCategory string
}

// Resolve runs the strategy pipeline; the first non-empty result wins.
// Order matters and is part of the contract: a channel mapping beats an
// explicit override, which beats keyword scoring, which beats the platform
// taxonomy mapping.
func Resolve(meta types.Metadata, opts Options) string {
	strategies := []func(types.Metadata, Options) string{
		channelMapStrategy,
		explicitOverrideStrategy,
		keywordScoringStrategy,
		platformCategoryStrategy,
	}
	for _, s := range strategies {
		if cat := s(meta, opts); cat != "" {
			return cat
		}
	}
	if opts.FallbackCategory != "" {
		return opts.FallbackCategory
	}
	return "Other"
}

// channelMapStrategy matches the channel name (trimmed, exact) against the
// user's channel→category map.
func channelMapStrategy(meta types.Metadata, opts Options) string {
	channel := strings.TrimSpace(meta.Channel)
	if channel == "" {
		return ""
	}
	return opts.ChannelMap[channel]
}

// explicitOverrideStrategy honors a category the caller forced (UI, context
// menu), bypassing detection.
func explicitOverrideStrategy(_ types.Metadata, opts Options) string {
	return strings.TrimSpace(opts.RequestedCategory)
}

// keywordScoringStrategy counts whole-word keyword matches over the
// lowercased title, description, and keyword list. The category with the
// strictly highest positive score wins; ties break alphabetically so
// resolution stays deterministic.
func keywordScoringStrategy(meta types.Metadata, opts Options) string {
	if !opts.AIEnabled || len(opts.CategoryKeywords) == 0 {
		return ""
	}

	haystack := strings.ToLower(strings.Join(append([]string{meta.Title, meta.Description}, meta.Keywords...), " "))
	if strings.TrimSpace(haystack) == "" {
		return ""
	}

	best := ""
	bestScore := 0
	categories := make([]string, 0, len(opts.CategoryKeywords))
	for cat := range opts.CategoryKeywords {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		score := 0
		for _, kw := range opts.CategoryKeywords[cat] {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
			if err != nil {
				continue
			}
			score += len(re.FindAllStringIndex(haystack, -1))
		}
		if score > bestScore {
			bestScore = score
			best = cat
		}
	}
	return best
}

// platformCategoryMap translates the site's native category taxonomy
// (names and numeric codes) into our category set.
var platformCategoryMap = map[string]string{
	"Film & Animation":     "Entertainment",
	"Music":                "Music",
	"Sports":               "Fitness",
	"Gaming":               "Gaming",
	"Comedy":               "Entertainment",
	"Entertainment":        "Entertainment",
	"News & Politics":      "News",
	"Howto & Style":        "Education",
	"Education":            "Education",
	"Science & Technology": "Tech",

	// Numeric category ids used by the platform's data API.
	"1":  "Entertainment",
	"10": "Music",
	"17": "Fitness",
	"20": "Gaming",
	"23": "Entertainment",
	"24": "Entertainment",
	"25": "News",
	"26": "Education",
	"27": "Education",
	"28": "Tech",
}

func platformCategoryStrategy(meta types.Metadata, _ Options) string {
	return platformCategoryMap[strings.TrimSpace(meta.YouTubeCategory)]
}
