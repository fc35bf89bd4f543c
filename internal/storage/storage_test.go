package storage

import (
	"os"
	"path/filepath"
	"testing"
)

// testStore creates a temporary database for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "dir", "tabgruppen.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not found: %v", err)
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	s := testStore(t)

	in := map[string]string{"Music": "blue", "Gaming": "red"}
	if err := s.Set(AreaLocal, "groupColorMap", in); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var out map[string]string
	found, err := s.Get(AreaLocal, "groupColorMap", &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("key not found after Set")
	}
	if out["Music"] != "blue" || out["Gaming"] != "red" {
		t.Errorf("round trip mismatch: %v", out)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := testStore(t)

	var out map[string]string
	found, err := s.Get(AreaSync, "settings", &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("found = true for missing key")
	}
	if out != nil {
		t.Errorf("dest was touched for missing key: %v", out)
	}
}

func TestAreasAreIndependent(t *testing.T) {
	s := testStore(t)

	if err := s.Set(AreaLocal, "k", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(AreaSync, "k", 2); err != nil {
		t.Fatal(err)
	}

	var local, sync int
	s.Get(AreaLocal, "k", &local)
	s.Get(AreaSync, "k", &sync)
	if local != 1 || sync != 2 {
		t.Errorf("areas bleed: local=%d sync=%d", local, sync)
	}
}

func TestSetManyIsAtomicAndVisible(t *testing.T) {
	s := testStore(t)

	err := s.SetMany(AreaLocal, map[string]any{
		"groupColorMap": map[string]string{"Music": "blue"},
		"groupIdMap":    map[string]int{"Music": 42},
	})
	if err != nil {
		t.Fatalf("SetMany: %v", err)
	}

	all, err := s.GetAll(AreaLocal)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("GetAll returned %d keys, want 2", len(all))
	}
}

func TestDeleteIgnoresMissing(t *testing.T) {
	s := testStore(t)

	if err := s.Set(AreaLocal, "a", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(AreaLocal, "a", "never-existed"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var v int
	found, _ := s.Get(AreaLocal, "a", &v)
	if found {
		t.Error("key still present after Delete")
	}
}

func TestMigrationsRunOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migrate.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s.Set(AreaLocal, "k", "v")
	s.Close()

	// Reopen: migrations must be skipped and data preserved.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	var v string
	found, err := s2.Get(AreaLocal, "k", &v)
	if err != nil || !found || v != "v" {
		t.Errorf("data lost across reopen: found=%v v=%q err=%v", found, v, err)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	s := testStore(t)

	s.Set(AreaLocal, "groupIdMap", map[string]int{"Music": 7, "Gaming": 9})
	s.Set(AreaSync, "settings", map[string]any{"extensionEnabled": true})

	blob, err := s.ExportBackup()
	if err != nil {
		t.Fatalf("ExportBackup: %v", err)
	}

	// Restore into a fresh store.
	s2 := testStore(t)
	s2.Set(AreaLocal, "stale", "should be replaced")
	if err := s2.ImportBackup(blob); err != nil {
		t.Fatalf("ImportBackup: %v", err)
	}

	var ids map[string]int
	found, err := s2.Get(AreaLocal, "groupIdMap", &ids)
	if err != nil || !found {
		t.Fatalf("groupIdMap missing after import: found=%v err=%v", found, err)
	}
	if ids["Music"] != 7 {
		t.Errorf("groupIdMap[Music] = %d, want 7", ids["Music"])
	}

	var stale string
	if found, _ := s2.Get(AreaLocal, "stale", &stale); found {
		t.Error("pre-import key survived ImportBackup")
	}
}

func TestImportBackupRejectsGarbage(t *testing.T) {
	s := testStore(t)

	if err := s.ImportBackup([]byte("not an lz4 frame")); err == nil {
		t.Error("expected error for non-lz4 data")
	}
}
