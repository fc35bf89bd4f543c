package settings

import (
	"encoding/json"
	"fmt"
)

// legacyV0 is the pre-versioned settings shape: duck-typed field names and
// no version marker. It was patched field-by-field at load time; the v1
// schema replaced that with an explicit migration.
type legacyV0 struct {
	Enabled      *bool               `json:"enabled"`
	AIDetection  *bool               `json:"aiDetection"`
	AutoCleanup  *bool               `json:"autoCleanup"`
	CleanupGrace *int                `json:"cleanupGraceMs"`
	GroupDelay   *int                `json:"groupDelay"`
	Colors       map[string]bool     `json:"colors"`
	Keywords     map[string][]string `json:"keywords"`
	ChannelMap   map[string]string   `json:"channelMap"`
}

// migrate brings a stored settings document up to CurrentVersion. The second
// return value reports whether a migration ran (and the result should be
// written back).
func migrate(raw json.RawMessage) (Settings, bool, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Settings{}, false, fmt.Errorf("probe version: %w", err)
	}

	switch probe.Version {
	case CurrentVersion:
		var s Settings
		if err := json.Unmarshal(raw, &s); err != nil {
			return Settings{}, false, fmt.Errorf("decode v%d settings: %w", CurrentVersion, err)
		}
		normalize(&s)
		return s, false, nil

	case 0:
		s, err := migrateV0(raw)
		if err != nil {
			return Settings{}, false, err
		}
		return s, true, nil

	default:
		return Settings{}, false, fmt.Errorf("settings version %d is newer than supported %d", probe.Version, CurrentVersion)
	}
}

// migrateV0 converts the legacy unversioned document to v1, filling defaults
// for fields the old shape never had.
func migrateV0(raw json.RawMessage) (Settings, error) {
	var old legacyV0
	if err := json.Unmarshal(raw, &old); err != nil {
		return Settings{}, fmt.Errorf("decode legacy settings: %w", err)
	}

	s := Default()
	if old.Enabled != nil {
		s.ExtensionEnabled = *old.Enabled
	}
	if old.AIDetection != nil {
		s.AICategoryDetection = *old.AIDetection
	}
	if old.AutoCleanup != nil {
		s.AutoCleanupEnabled = *old.AutoCleanup
	}
	if old.CleanupGrace != nil {
		s.AutoCleanupGraceMs = *old.CleanupGrace
	}
	if old.GroupDelay != nil {
		s.AutoGroupDelay = *old.GroupDelay
	}
	if old.Colors != nil {
		s.EnabledColors = old.Colors
	}
	if old.Keywords != nil {
		s.CategoryKeywords = old.Keywords
	}
	if old.ChannelMap != nil {
		s.ChannelCategoryMap = old.ChannelMap
	}
	s.Version = CurrentVersion
	normalize(&s)
	return s, nil
}
