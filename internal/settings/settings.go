// Package settings owns the user-facing configuration stored in the sync
// area: a versioned schema with explicit migrations, cached in memory and
// refreshed on demand.
package settings

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lotas/tabgruppen/internal/storage"
	"github.com/lotas/tabgruppen/internal/types"
)

// CurrentVersion is the settings schema version written by this build.
const CurrentVersion = 1

const storeKey = "settings"

// Settings is the full user configuration.
type Settings struct {
	ExtensionEnabled    bool                `json:"extensionEnabled"`
	AICategoryDetection bool                `json:"aiCategoryDetection"`
	AutoCleanupEnabled  bool                `json:"autoCleanupEnabled"`
	AutoCleanupGraceMs  int                 `json:"autoCleanupGraceMs"`
	AutoGroupDelay      int                 `json:"autoGroupDelay"` // ms before auto-grouping a ready tab
	EnabledColors       map[string]bool     `json:"enabledColors"`
	CategoryKeywords    map[string][]string `json:"categoryKeywords"`
	ChannelCategoryMap  map[string]string   `json:"channelCategoryMap"`
	Version             int                 `json:"version"`
}

// FallbackCategory is used when no resolver strategy produces a category.
const FallbackCategory = "Other"

// Default returns the built-in settings.
func Default() Settings {
	colors := make(map[string]bool, len(types.GroupColors))
	for _, c := range types.GroupColors {
		colors[c] = true
	}
	return Settings{
		ExtensionEnabled:    true,
		AICategoryDetection: true,
		AutoCleanupEnabled:  true,
		AutoCleanupGraceMs:  300_000,
		AutoGroupDelay:      2_000,
		EnabledColors:       colors,
		CategoryKeywords:    DefaultCategoryKeywords(),
		ChannelCategoryMap:  map[string]string{},
		Version:             CurrentVersion,
	}
}

// DefaultCategoryKeywords returns the built-in keyword lists per category.
func DefaultCategoryKeywords() map[string][]string {
	return map[string][]string{
		"Gaming":        {"gameplay", "gaming", "fortnite", "minecraft", "speedrun", "walkthrough", "esports", "playthrough", "twitch"},
		"Music":         {"music", "song", "album", "remix", "lyrics", "concert", "cover", "playlist", "official video"},
		"Education":     {"tutorial", "course", "lecture", "learn", "explained", "documentary", "science", "math"},
		"Tech":          {"programming", "coding", "software", "linux", "unboxing", "benchmark", "keyboard", "review"},
		"News":          {"news", "breaking", "politics", "headline", "report"},
		"Fitness":       {"workout", "fitness", "yoga", "exercise", "training", "cardio"},
		"Cooking":       {"recipe", "cooking", "baking", "kitchen", "chef"},
		"Entertainment": {"trailer", "comedy", "reaction", "vlog", "sketch", "prank"},
	}
}

// Repository caches settings loaded from the sync area.
type Repository struct {
	store *storage.Store

	mu     sync.RWMutex
	cached Settings
	loaded bool
}

// NewRepository creates a repository over the given store. Nothing is read
// until the first Get or Refresh.
func NewRepository(store *storage.Store) *Repository {
	return &Repository{store: store}
}

// Get returns the cached settings, loading them on first use. A load failure
// degrades to defaults so read paths never fail for lack of settings.
func (r *Repository) Get() Settings {
	r.mu.RLock()
	if r.loaded {
		s := r.cached
		r.mu.RUnlock()
		return s
	}
	r.mu.RUnlock()

	s, err := r.Refresh()
	if err != nil {
		return Default()
	}
	return s
}

// Refresh re-reads settings from storage, migrating old schema versions and
// persisting the migrated form.
func (r *Repository) Refresh() (Settings, error) {
	var raw json.RawMessage
	found, err := r.store.Get(storage.AreaSync, storeKey, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	s := Default()
	if found {
		migrated, didMigrate, err := migrate(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("migrate settings: %w", err)
		}
		s = migrated
		if didMigrate {
			if err := r.store.Set(storage.AreaSync, storeKey, s); err != nil {
				return Settings{}, fmt.Errorf("persist migrated settings: %w", err)
			}
		}
	}

	r.mu.Lock()
	r.cached = s
	r.loaded = true
	r.mu.Unlock()
	return s, nil
}

// Save validates, persists, and caches the given settings.
func (r *Repository) Save(s Settings) error {
	s.Version = CurrentVersion
	normalize(&s)

	if err := r.store.Set(storage.AreaSync, storeKey, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	r.mu.Lock()
	r.cached = s
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// Update applies fn to a copy of the current settings and saves the result.
func (r *Repository) Update(fn func(*Settings)) (Settings, error) {
	s := r.Get()
	fn(&s)
	if err := r.Save(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// normalize fills nil maps and drops colors the tabGroups API does not know.
func normalize(s *Settings) {
	if s.EnabledColors == nil {
		s.EnabledColors = Default().EnabledColors
	}
	for c := range s.EnabledColors {
		if !types.ValidColor(c) {
			delete(s.EnabledColors, c)
		}
	}
	if s.CategoryKeywords == nil {
		s.CategoryKeywords = DefaultCategoryKeywords()
	}
	if s.ChannelCategoryMap == nil {
		s.ChannelCategoryMap = map[string]string{}
	}
	if s.AutoCleanupGraceMs <= 0 {
		s.AutoCleanupGraceMs = Default().AutoCleanupGraceMs
	}
	if s.AutoGroupDelay < 0 {
		s.AutoGroupDelay = 0
	}
}
