package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zimi-go/zimi/internal/download"
	"github.com/zimi-go/zimi/internal/registry"
)

func TestPasswordRoundTrip(t *testing.T) {
	s := New(t.TempDir(), nil)

	if !s.CheckPassword("anything") {
		t.Fatal("no password set should allow any check")
	}
	if err := s.SetPassword("hunter2"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if !s.HasPassword() {
		t.Fatal("HasPassword should be true after SetPassword")
	}
	if !s.CheckPassword("hunter2") {
		t.Fatal("correct password should check out")
	}
	if s.CheckPassword("wrong") {
		t.Fatal("wrong password should not check out")
	}

	if err := s.SetPassword(""); err != nil {
		t.Fatalf("clear password: %v", err)
	}
	if s.HasPassword() {
		t.Fatal("HasPassword should be false after clearing")
	}
	if !s.CheckPassword("whatever") {
		t.Fatal("cleared password should allow any check")
	}
}

func TestCollectionsCRUD(t *testing.T) {
	s := New(t.TempDir(), nil)

	if got := s.ListCollections(); len(got) != 0 {
		t.Fatalf("expected empty collections, got %v", got)
	}
	if err := s.SaveCollection("favorites", []string{"wikipedia-en-mini"}); err != nil {
		t.Fatalf("SaveCollection: %v", err)
	}
	got := s.ListCollections()
	if len(got["favorites"]) != 1 || got["favorites"][0] != "wikipedia-en-mini" {
		t.Fatalf("unexpected collections: %v", got)
	}
	if err := s.DeleteCollection("favorites"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if got := s.ListCollections(); len(got) != 0 {
		t.Fatalf("expected empty after delete, got %v", got)
	}
}

func TestAppendHistoryNewestFirstAndCapped(t *testing.T) {
	s := New(t.TempDir(), nil)

	s.AppendHistory(download.HistoryEvent{Event: "downloaded", Filename: "a.zim", Timestamp: 1})
	s.AppendHistory(download.HistoryEvent{Event: "downloaded", Filename: "b.zim", Timestamp: 2})

	got := s.History()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Filename != "b.zim" {
		t.Fatalf("expected newest event first, got %q", got[0].Filename)
	}
}

func TestSaveAndLoadCache(t *testing.T) {
	s := New(t.TempDir(), nil)
	archives := []*registry.Archive{
		registry.NewArchiveForTest("wikipedia-en-mini", 1000, nil),
	}
	if err := s.SaveCache(archives); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}
	got := s.LoadCache()
	if len(got) != 1 || got[0].ID != "wikipedia-en-mini" {
		t.Fatalf("unexpected cache: %v", got)
	}
}

func TestMigrateLegacyMovesFlatFiles(t *testing.T) {
	archiveDir := t.TempDir()
	dataDir := filepath.Join(archiveDir, ".zimi")

	if err := os.WriteFile(filepath.Join(archiveDir, ".zimi_password"), []byte("abc"), 0o600); err != nil {
		t.Fatal(err)
	}

	MigrateLegacy(archiveDir, dataDir, nil)

	got, err := os.ReadFile(filepath.Join(dataDir, "password"))
	if err != nil {
		t.Fatalf("expected migrated password file: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("migrated content mismatch: %q", got)
	}
	if _, err := os.Stat(filepath.Join(archiveDir, ".zimi_password")); !os.IsNotExist(err) {
		t.Fatal("legacy file should have been renamed away")
	}
}
