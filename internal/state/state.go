// Package state implements persistent state (component I): the archive
// metadata cache, the management password hash, collections, and the
// download/deletion history ring, all under <data_dir>/. Every file is
// written via a temp-file-plus-rename so a process kill mid-write never
// leaves a truncated file, grounded on the original's
// _append_history/_save_collections (os.replace after write) and
// internal/safeio's WriteJSONAtomic/ReadJSON helpers.
package state

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zimi-go/zimi/internal/download"
	"github.com/zimi-go/zimi/internal/registry"
	"github.com/zimi-go/zimi/internal/safeio"
)

// historyMax is the ring's capacity, per spec.md §4.8 ("append-only
// ring of last N events (default 1,000)").
const historyMax = 1000

// Store owns every persistent file under dataDir. All methods are safe
// for concurrent use; each concern (password, collections, history,
// cache) has its own lock so a slow history append never blocks a
// password check.
type Store struct {
	dataDir string
	log     *slog.Logger

	pwMu sync.Mutex

	colMu sync.Mutex

	histMu sync.Mutex

	cacheMu sync.Mutex
}

// New creates a Store rooted at dataDir. Callers should call
// MigrateLegacy once at startup before using the returned Store.
func New(dataDir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{dataDir: dataDir, log: log}
}

func (s *Store) path(name string) string { return filepath.Join(s.dataDir, name) }

// legacyMigrations maps a flat legacy filename at the archive dir root
// to its new name under dataDir, mirroring the original's
// _migrate_data_files table exactly.
var legacyMigrations = []struct{ oldName, newName string }{
	{".zimi_password", "password"},
	{".zimi_collections.json", "collections.json"},
	{".zimi_cache.json", "cache.json"},
}

// MigrateLegacy moves flat legacy state files from archiveDir's root
// into dataDir on first run, per spec.md §4.8 ("Legacy paths ... are
// migrated on first run"). A migration failure is logged and skipped,
// never fatal.
func MigrateLegacy(archiveDir, dataDir string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	for _, m := range legacyMigrations {
		oldPath := filepath.Join(archiveDir, m.oldName)
		newPath := filepath.Join(dataDir, m.newName)
		if _, err := os.Stat(newPath); err == nil {
			continue // already migrated
		}
		if _, err := os.Stat(oldPath); err != nil {
			continue // nothing to migrate
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			log.Warn("state: mkdir data dir for migration failed", "error", err)
			continue
		}
		if err := os.Rename(oldPath, newPath); err != nil {
			log.Warn("state: legacy migration failed", "from", oldPath, "to", newPath, "error", err)
			continue
		}
		log.Info("state: migrated legacy file", "from", m.oldName, "to", m.newName)
	}
}

// CacheEntry is the snapshot recorded per archive in cache.json, per
// spec.md §4.8 ("last archive metadata snapshot (array of Archive
// records)"). A dedicated struct is used rather than marshaling
// *registry.Archive directly, since Archive carries unexported native
// handles that must never round-trip through JSON.
type CacheEntry struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Language    string            `json:"language"`
	Category    registry.Category `json:"category"`
	EntryCount  int               `json:"entry_count"`
	Size        int64             `json:"size"`
	Flavor      string            `json:"flavor"`
	HasFTS      bool              `json:"has_fts"`
}

// SaveCache writes a snapshot of the registry's current archives to
// cache.json.
func (s *Store) SaveCache(archives []*registry.Archive) error {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entries := make([]CacheEntry, 0, len(archives))
	for _, a := range archives {
		entries = append(entries, CacheEntry{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			Language:    a.Language,
			Category:    a.Category,
			EntryCount:  a.EntryCount,
			Size:        a.Size,
			Flavor:      a.Flavor,
			HasFTS:      a.HasFTS,
		})
	}
	return safeio.WriteJSONAtomic(s.path("cache.json"), entries)
}

// LoadCache reads the last-known archive metadata snapshot. Returns an
// empty slice, not an error, if no cache exists yet.
func (s *Store) LoadCache() []CacheEntry {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	var entries []CacheEntry
	if err := safeio.ReadJSON(s.path("cache.json"), &entries); err != nil {
		return nil
	}
	return entries
}

// compile-time check that Store implements download.HistorySink.
var _ download.HistorySink = (*Store)(nil)
