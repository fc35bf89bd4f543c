package settings

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/lotas/tabgruppen/internal/storage"
)

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetReturnsDefaultsOnEmptyStore(t *testing.T) {
	repo := NewRepository(testStore(t))

	s := repo.Get()
	if !s.ExtensionEnabled || !s.AICategoryDetection {
		t.Errorf("defaults not applied: %+v", s)
	}
	if s.AutoCleanupGraceMs != 300_000 {
		t.Errorf("grace = %d, want 300000", s.AutoCleanupGraceMs)
	}
	if len(s.CategoryKeywords["Gaming"]) == 0 {
		t.Error("default Gaming keywords missing")
	}
}

func TestSaveRefreshRoundTrip(t *testing.T) {
	store := testStore(t)
	repo := NewRepository(store)

	s := Default()
	s.ExtensionEnabled = false
	s.ChannelCategoryMap = map[string]string{"Foo": "Music"}
	if err := repo.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Fresh repository simulates a restart.
	repo2 := NewRepository(store)
	got, err := repo2.Refresh()
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got.ExtensionEnabled {
		t.Error("extensionEnabled not persisted")
	}
	if got.ChannelCategoryMap["Foo"] != "Music" {
		t.Errorf("channel map not persisted: %v", got.ChannelCategoryMap)
	}
	if got.Version != CurrentVersion {
		t.Errorf("version = %d, want %d", got.Version, CurrentVersion)
	}
}

func TestSaveDropsInvalidColors(t *testing.T) {
	repo := NewRepository(testStore(t))

	s := Default()
	s.EnabledColors["chartreuse"] = true
	if err := repo.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := repo.Get().EnabledColors["chartreuse"]; ok {
		t.Error("invalid color survived Save")
	}
}

func TestMigrateV0(t *testing.T) {
	store := testStore(t)

	// Write a legacy, unversioned document directly.
	legacy := map[string]any{
		"enabled":    false,
		"channelMap": map[string]string{"SomeChannel": "Tech"},
		"colors":     map[string]bool{"blue": true, "red": false},
	}
	if err := store.Set(storage.AreaSync, "settings", legacy); err != nil {
		t.Fatalf("seed legacy settings: %v", err)
	}

	repo := NewRepository(store)
	s, err := repo.Refresh()
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if s.ExtensionEnabled {
		t.Error("legacy enabled=false lost in migration")
	}
	if s.ChannelCategoryMap["SomeChannel"] != "Tech" {
		t.Errorf("channel map lost: %v", s.ChannelCategoryMap)
	}
	if s.Version != CurrentVersion {
		t.Errorf("version = %d, want %d", s.Version, CurrentVersion)
	}
	// Fields the legacy shape never had fall back to defaults.
	if s.AutoCleanupGraceMs != 300_000 {
		t.Errorf("grace = %d, want default", s.AutoCleanupGraceMs)
	}

	// Migration result must have been written back.
	var raw json.RawMessage
	found, err := store.Get(storage.AreaSync, "settings", &raw)
	if err != nil || !found {
		t.Fatalf("settings missing after migration: %v", err)
	}
	var probe struct {
		Version int `json:"version"`
	}
	json.Unmarshal(raw, &probe)
	if probe.Version != CurrentVersion {
		t.Errorf("stored version = %d, want %d", probe.Version, CurrentVersion)
	}
}

func TestMigrateRejectsNewerVersion(t *testing.T) {
	store := testStore(t)
	store.Set(storage.AreaSync, "settings", map[string]any{"version": 99})

	repo := NewRepository(store)
	if _, err := repo.Refresh(); err == nil {
		t.Error("expected error for future settings version")
	}
}

func TestUpdate(t *testing.T) {
	repo := NewRepository(testStore(t))

	got, err := repo.Update(func(s *Settings) { s.ExtensionEnabled = false })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.ExtensionEnabled {
		t.Error("Update did not apply")
	}
	if repo.Get().ExtensionEnabled {
		t.Error("Update not visible through Get")
	}
}
