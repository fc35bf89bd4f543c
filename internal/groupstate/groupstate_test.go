package groupstate

import (
	"path/filepath"
	"testing"

	"github.com/lotas/tabgruppen/internal/storage"
	"github.com/lotas/tabgruppen/internal/types"
)

type recordingCache struct {
	seeded map[string]string
	seeds  int
}

func (r *recordingCache) Seed(m map[string]string) {
	r.seeded = m
	r.seeds++
}

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPersistInitializeRoundTrip(t *testing.T) {
	store := testStore(t)
	c := NewCoordinator(store, nil)

	if err := c.Persist("Music", 42, "blue"); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if err := c.Persist("Gaming", 43, "red"); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	// Fresh coordinator simulates a restart.
	cache := &recordingCache{}
	c2 := NewCoordinator(store, cache)
	if err := c2.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if id, ok := c2.GroupID("Music"); !ok || id != 42 {
		t.Errorf("GroupID(Music) = %d, %v; want 42, true", id, ok)
	}
	colorMap, idMap := c2.Snapshot()
	if colorMap["Gaming"] != "red" || idMap["Gaming"] != 43 {
		t.Errorf("snapshot = %v, %v", colorMap, idMap)
	}
	if cache.seeded["Music"] != "blue" {
		t.Errorf("color cache not seeded on Initialize: %v", cache.seeded)
	}
}

func TestInitializeEmptyStore(t *testing.T) {
	c := NewCoordinator(testStore(t), &recordingCache{})
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize on empty store: %v", err)
	}
	if _, ok := c.GroupID("anything"); ok {
		t.Error("empty store produced a group id")
	}
}

func TestPruneGroupRemovesAllMatchingCategories(t *testing.T) {
	store := testStore(t)
	c := NewCoordinator(store, nil)

	// Rename-then-delete edge case: two categories pointing at one id.
	c.Persist("Music", 42, "blue")
	c.Persist("Tunes", 42, "blue")
	c.Persist("Gaming", 43, "red")

	c.PruneGroup(42)

	if _, ok := c.GroupID("Music"); ok {
		t.Error("Music survived prune")
	}
	if _, ok := c.GroupID("Tunes"); ok {
		t.Error("Tunes survived prune")
	}
	if _, ok := c.GroupID("Gaming"); !ok {
		t.Error("Gaming was pruned but maps to a different group")
	}

	// Pruned state must be durable.
	c2 := NewCoordinator(store, nil)
	c2.Initialize()
	if _, ok := c2.GroupID("Music"); ok {
		t.Error("prune was not persisted")
	}
}

func TestPruneGroupNoMatchDoesNotWrite(t *testing.T) {
	store := testStore(t)
	cache := &recordingCache{}
	c := NewCoordinator(store, cache)
	c.Persist("Music", 42, "blue")
	seedsBefore := cache.seeds

	c.PruneGroup(999)

	if cache.seeds != seedsBefore {
		t.Error("no-op prune still reseeded the color cache (wrote state)")
	}
	if _, ok := c.GroupID("Music"); !ok {
		t.Error("unrelated category removed")
	}
}

func TestApplyGroupUpdateRekeysOnRename(t *testing.T) {
	store := testStore(t)
	c := NewCoordinator(store, nil)
	c.Persist("Music", 42, "blue")

	c.ApplyGroupUpdate(types.Group{ID: 42, Title: "Jams", Color: "pink"})

	if _, ok := c.GroupID("Music"); ok {
		t.Error("old category name survived rename")
	}
	if id, ok := c.GroupID("Jams"); !ok || id != 42 {
		t.Errorf("GroupID(Jams) = %d, %v; want 42, true", id, ok)
	}
	colorMap, _ := c.Snapshot()
	if colorMap["Jams"] != "pink" {
		t.Errorf("color not updated: %v", colorMap)
	}

	// Re-key must be durable.
	c2 := NewCoordinator(store, nil)
	c2.Initialize()
	if _, ok := c2.GroupID("Jams"); !ok {
		t.Error("rename not persisted")
	}
}

func TestApplyGroupUpdateUnknownGroupIsNoop(t *testing.T) {
	c := NewCoordinator(testStore(t), nil)
	c.Persist("Music", 42, "blue")

	c.ApplyGroupUpdate(types.Group{ID: 7, Title: "Stranger", Color: "red"})

	if _, ok := c.GroupID("Stranger"); ok {
		t.Error("unknown group update created state")
	}
}

func TestApplyGroupUpdateColorOnly(t *testing.T) {
	c := NewCoordinator(testStore(t), nil)
	c.Persist("Music", 42, "blue")

	c.ApplyGroupUpdate(types.Group{ID: 42, Title: "Music", Color: "green"})

	colorMap, _ := c.Snapshot()
	if colorMap["Music"] != "green" {
		t.Errorf("color = %q, want green", colorMap["Music"])
	}
}

func TestPersistSeedsColorCache(t *testing.T) {
	cache := &recordingCache{}
	c := NewCoordinator(testStore(t), cache)

	c.Persist("Music", 42, "blue")
	if cache.seeded["Music"] != "blue" {
		t.Errorf("cache not refreshed after Persist: %v", cache.seeded)
	}
}
