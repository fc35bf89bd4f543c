package resolver

import (
	"testing"

	"github.com/lotas/tabgruppen/internal/settings"
	"github.com/lotas/tabgruppen/internal/types"
)

func defaultOpts() Options {
	return Options{
		AIEnabled:        true,
		CategoryKeywords: settings.DefaultCategoryKeywords(),
		ChannelMap:       map[string]string{},
		FallbackCategory: "Other",
	}
}

func TestResolveEmptyMetadataFallsBack(t *testing.T) {
	got := Resolve(types.Metadata{}, defaultOpts())
	if got != "Other" {
		t.Errorf("Resolve(empty) = %q, want Other", got)
	}
}

func TestResolveFortniteGameplay(t *testing.T) {
	meta := types.Metadata{Title: "Epic Fortnite Gameplay"}
	if got := Resolve(meta, defaultOpts()); got != "Gaming" {
		t.Errorf("Resolve = %q, want Gaming", got)
	}
}

func TestChannelMapBeatsKeywords(t *testing.T) {
	opts := defaultOpts()
	opts.ChannelMap = map[string]string{"Foo": "Music"}
	meta := types.Metadata{
		Title:   "Fortnite gameplay speedrun walkthrough",
		Channel: "Foo",
	}
	if got := Resolve(meta, opts); got != "Music" {
		t.Errorf("Resolve = %q, want Music (channel map must win)", got)
	}
}

func TestChannelNameIsTrimmed(t *testing.T) {
	opts := defaultOpts()
	opts.ChannelMap = map[string]string{"Foo": "Music"}
	meta := types.Metadata{Channel: "  Foo  "}
	if got := Resolve(meta, opts); got != "Music" {
		t.Errorf("Resolve = %q, want Music", got)
	}
}

func TestRequestedCategoryBeatsKeywordsButNotChannelMap(t *testing.T) {
	opts := defaultOpts()
	opts.RequestedCategory = "Cooking"
	meta := types.Metadata{Title: "Fortnite gameplay"}
	if got := Resolve(meta, opts); got != "Cooking" {
		t.Errorf("Resolve = %q, want Cooking (override beats keywords)", got)
	}

	opts.ChannelMap = map[string]string{"Bar": "Music"}
	meta.Channel = "Bar"
	if got := Resolve(meta, opts); got != "Music" {
		t.Errorf("Resolve = %q, want Music (channel map beats override)", got)
	}
}

func TestKeywordScoringDisabledWithoutAI(t *testing.T) {
	opts := defaultOpts()
	opts.AIEnabled = false
	meta := types.Metadata{Title: "Fortnite gameplay"}
	if got := Resolve(meta, opts); got != "Other" {
		t.Errorf("Resolve = %q, want Other when aiEnabled=false", got)
	}
}

func TestKeywordMatchesAreWholeWord(t *testing.T) {
	opts := Options{
		AIEnabled:        true,
		CategoryKeywords: map[string][]string{"Music": {"song"}},
		FallbackCategory: "Other",
	}
	// "songbird" must not count as "song".
	meta := types.Metadata{Title: "the songbird documentary"}
	if got := Resolve(meta, opts); got != "Other" {
		t.Errorf("Resolve = %q, want Other (substring must not match)", got)
	}

	meta.Title = "a song about birds"
	if got := Resolve(meta, opts); got != "Music" {
		t.Errorf("Resolve = %q, want Music", got)
	}
}

func TestKeywordScoringUsesAllFields(t *testing.T) {
	opts := defaultOpts()
	meta := types.Metadata{
		Title:       "untitled",
		Description: "full workout at home",
		Keywords:    []string{"cardio", "training"},
	}
	if got := Resolve(meta, opts); got != "Fitness" {
		t.Errorf("Resolve = %q, want Fitness", got)
	}
}

func TestKeywordTieBreaksAlphabetically(t *testing.T) {
	opts := Options{
		AIEnabled: true,
		CategoryKeywords: map[string][]string{
			"Zebra": {"stripes"},
			"Alpha": {"stripes"},
		},
		FallbackCategory: "Other",
	}
	meta := types.Metadata{Title: "stripes everywhere"}
	if got := Resolve(meta, opts); got != "Alpha" {
		t.Errorf("Resolve = %q, want Alpha (alphabetical tie-break)", got)
	}
}

func TestPlatformCategoryMapping(t *testing.T) {
	cases := []struct {
		platform string
		want     string
	}{
		{"Sports", "Fitness"},
		{"Howto & Style", "Education"},
		{"Science & Technology", "Tech"},
		{"10", "Music"},
		{"20", "Gaming"},
		{"totally unknown", "Other"},
		{"", "Other"},
	}
	opts := defaultOpts()
	opts.AIEnabled = false
	for _, tc := range cases {
		meta := types.Metadata{YouTubeCategory: tc.platform}
		if got := Resolve(meta, opts); got != tc.want {
			t.Errorf("Resolve(youtubeCategory=%q) = %q, want %q", tc.platform, got, tc.want)
		}
	}
}

func TestConfiguredFallback(t *testing.T) {
	opts := Options{FallbackCategory: "Misc"}
	if got := Resolve(types.Metadata{}, opts); got != "Misc" {
		t.Errorf("Resolve = %q, want Misc", got)
	}
}
