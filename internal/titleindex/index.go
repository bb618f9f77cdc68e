package titleindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/zimi-go/zimi/internal/dbopen"
)

// ftsThreshold is the entry count above which FTS population is
// skipped at build time (spec: entry count > 2,000,000).
const ftsThreshold = 2_000_000

// batchSize is the maximum rows per insert transaction during a build.
const batchSize = 5000

// SourceEntry is one archive entry fed to Build by the registry, which
// owns enumeration of the underlying archive.
type SourceEntry struct {
	Path  string
	Title string
	Kind  string // article, image, media, other
}

// Row is one prefix/FTS query hit.
type Row struct {
	Path  string
	Title string
}

// Index is one archive's title index: a single database handle, swapped
// for a freshly built one by Build, guarded by the caller's per-archive
// title lock (registry.Archive.TitleLock).
type Index struct {
	archiveID string
	dbPath    string

	mu       sync.Mutex // guards state below
	db       *sql.DB
	hasFTS   bool
	failed   bool
	attempts int
}

// dbPathFor returns the on-disk path for an archive's title index.
func dbPathFor(dataDir, archiveID string) string {
	return filepath.Join(dataDir, "titles", archiveID+".db")
}

// Open opens (or creates) the title index database for archiveID
// under dataDir, applying pragmas via internal/dbopen tuned for a
// read-heavy per-archive index.
func Open(dataDir, archiveID string) (*Index, error) {
	path := dbPathFor(dataDir, archiveID)
	db, err := dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithCacheSize(-16000),
		dbopen.WithSchema(schema),
	)
	if err != nil {
		return nil, fmt.Errorf("titleindex: open %s: %w", archiveID, err)
	}
	idx := &Index{archiveID: archiveID, dbPath: path, db: db}
	idx.hasFTS = idx.tableExists("entries_fts")
	return idx, nil
}

// Close releases the underlying database connection.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.db == nil {
		return nil
	}
	err := idx.db.Close()
	idx.db = nil
	return err
}

// HasFTS reports whether this index carries a populated FTS table.
func (idx *Index) HasFTS() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.hasFTS
}

func (idx *Index) tableExists(name string) bool {
	var n int
	err := idx.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name,
	).Scan(&n)
	return err == nil && n > 0
}

// IsCurrent reports whether the stored fingerprint matches the given
// archive file size and mtime, meaning no rebuild is needed.
func (idx *Index) IsCurrent(fileSize, fileMTime int64) bool {
	size, mtime, ok := idx.fingerprint()
	return ok && size == fileSize && mtime == fileMTime
}

func (idx *Index) fingerprint() (size, mtime int64, ok bool) {
	idx.mu.Lock()
	db := idx.db
	idx.mu.Unlock()
	if db == nil {
		return 0, 0, false
	}
	vals := map[string]string{}
	for _, key := range []string{"source_size", "source_mtime"} {
		var v string
		if err := db.QueryRow(`SELECT value FROM meta WHERE key=?`, key).Scan(&v); err != nil {
			return 0, 0, false
		}
		vals[key] = v
	}
	size, err1 := strconv.ParseInt(vals["source_size"], 10, 64)
	mtime, err2 := strconv.ParseInt(vals["source_mtime"], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return size, mtime, true
}

// Build rewrites the title index from scratch: it writes to a .tmp
// database, batch-inserts every entry, optionally populates FTS, then
// atomically renames over the live database file. The caller must
// hold the archive's title lock exclusively for the duration.
func (idx *Index) Build(ctx context.Context, entries func(yield func(SourceEntry) bool) error, fileSize, fileMTime int64) error {
	tmpPath := idx.dbPath + ".tmp"
	os.Remove(tmpPath)

	tmpDB, err := dbopen.Open(tmpPath, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return fmt.Errorf("titleindex: open tmp: %w", err)
	}
	defer tmpDB.Close()

	total, err := insertBatched(ctx, tmpDB, entries)
	if err != nil {
		tmpDB.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("titleindex: build: %w", err)
	}

	hasFTS := total <= ftsThreshold
	if hasFTS {
		if err := buildFTS(ctx, tmpDB); err != nil {
			tmpDB.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("titleindex: build fts: %w", err)
		}
	}

	if err := writeMeta(ctx, tmpDB, total, hasFTS, fileSize, fileMTime); err != nil {
		tmpDB.Close()
		os.Remove(tmpPath)
		return err
	}
	tmpDB.Close()

	idx.mu.Lock()
	if idx.db != nil {
		idx.db.Close()
		idx.db = nil
	}
	idx.mu.Unlock()

	if err := os.Rename(tmpPath, idx.dbPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("titleindex: rename: %w", err)
	}

	db, err := dbopen.Open(idx.dbPath, dbopen.WithCacheSize(-16000))
	if err != nil {
		return fmt.Errorf("titleindex: reopen after build: %w", err)
	}
	idx.mu.Lock()
	idx.db = db
	idx.hasFTS = hasFTS
	idx.attempts = 0
	idx.failed = false
	idx.mu.Unlock()
	return nil
}

// insertBatched buffers entries and commits them batchSize rows at a
// time via dbopen.RunTx, so a transient SQLITE_BUSY on the build
// database is retried instead of failing the whole build.
func insertBatched(ctx context.Context, db *sql.DB, entries func(yield func(SourceEntry) bool) error) (int, error) {
	total := 0
	batch := make([]SourceEntry, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		rows := batch
		err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(`INSERT OR REPLACE INTO entries (path, title, title_lower, kind) VALUES (?, ?, ?, ?)`)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, e := range rows {
				kind := e.Kind
				if kind == "" {
					kind = "article"
				}
				if _, err := stmt.Exec(e.Path, e.Title, lowerFold(e.Title), kind); err != nil {
					return err
				}
			}
			return nil
		})
		batch = batch[:0]
		return err
	}

	var yieldErr error
	err := entries(func(e SourceEntry) bool {
		if ctx.Err() != nil {
			yieldErr = ctx.Err()
			return false
		}
		batch = append(batch, e)
		total++
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				yieldErr = err
				return false
			}
		}
		return true
	})
	if err != nil {
		return total, err
	}
	if yieldErr != nil {
		return total, yieldErr
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

func buildFTS(ctx context.Context, db *sql.DB) error {
	if _, err := dbopen.Exec(ctx, db, ftsSchema); err != nil {
		return err
	}
	_, err := dbopen.Exec(ctx, db, `INSERT INTO entries_fts (path, title) SELECT path, title FROM entries`)
	return err
}

func writeMeta(ctx context.Context, db *sql.DB, entryCount int, hasFTS bool, fileSize, fileMTime int64) error {
	kv := map[string]string{
		"schema_version": "1",
		"built_at":       strconv.FormatInt(time.Now().Unix(), 10),
		"entry_count":    strconv.Itoa(entryCount),
		"has_fts":        strconv.FormatBool(hasFTS),
		"source_size":    strconv.FormatInt(fileSize, 10),
		"source_mtime":   strconv.FormatInt(fileMTime, 10),
	}
	for k, v := range kv {
		if _, err := dbopen.Exec(ctx, db, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("titleindex: write meta %s: %w", k, err)
		}
	}
	return nil
}

// BuildFTS adds the FTS table in place, without rebuilding entries,
// for archives that skipped it at build time (spec.md's "dynamic FTS
// build" operation).
func (idx *Index) BuildFTS(ctx context.Context) error {
	idx.mu.Lock()
	db := idx.db
	idx.mu.Unlock()
	if db == nil {
		return fmt.Errorf("titleindex: index closed")
	}
	if err := buildFTS(ctx, db); err != nil {
		return fmt.Errorf("titleindex: build fts: %w", err)
	}
	if _, err := dbopen.Exec(ctx, db, `INSERT OR REPLACE INTO meta (key, value) VALUES ('has_fts', 'true')`); err != nil {
		return err
	}
	idx.mu.Lock()
	idx.hasFTS = true
	idx.mu.Unlock()
	return nil
}

// MarkFailed records a failed build attempt. After three consecutive
// failures the archive is quarantined from phase 1 (Failed reports
// true).
func (idx *Index) MarkFailed() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.attempts++
	if idx.attempts >= 3 {
		idx.failed = true
	}
}

// Failed reports whether this index has been quarantined after three
// consecutive build failures.
func (idx *Index) Failed() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.failed
}
