// Package registry owns the process-wide archive table: opening,
// caching, and reopening ZIM archives, along with the concurrency
// primitives that guard access to them.
//
// The underlying archive reader is not thread-safe across archives
// for native-code operations (full-text search, random entry, blob
// reads), so the registry exposes a single global archive lock that
// callers must hold for those operations. Title-index-only work
// (prefix search, suggestions) uses a per-archive title lock instead,
// allowing parallel work across archives.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/zimi-go/zimi/internal/titleindex"
	"github.com/zimi-go/zimi/internal/zimfmt"
)

// Category is a coarse classification of an archive's content,
// computed once at load time from its filename and metadata.
type Category string

const (
	CategoryWikipedia   Category = "wikipedia"
	CategoryWiktionary  Category = "wiktionary"
	CategoryWikiquote   Category = "wikiquote"
	CategoryStackExchange Category = "stackexchange"
	CategoryDevDocs     Category = "devdocs"
	CategoryOther       Category = "other"
)

// Archive is one opened ZIM file and its registry-level metadata.
type Archive struct {
	ID          string
	Path        string
	Size        int64
	EntryCount  int
	Title       string
	Description string
	Language    string
	Publisher   string
	Illustration []byte
	Flavor      string
	Category    Category
	HasIcon     bool
	FileMTime   int64
	FileSize    int64
	HasFTS      bool

	handle *zimfmt.Archive
	title  *sync.RWMutex
	Titles *titleindex.Index
}

// TitleLock returns the archive's per-archive title-index lock.
func (a *Archive) TitleLock() *sync.RWMutex { return a.title }

// NewArchiveForTest builds a minimal Archive with no native handle,
// for exercising title-index-only code paths (search, suggest) from
// other packages' tests without a real ZIM file.
func NewArchiveForTest(id string, entryCount int, titles *titleindex.Index) *Archive {
	return &Archive{ID: id, EntryCount: entryCount, title: &sync.RWMutex{}, Titles: titles}
}

// PutForTest inserts archives directly into a Registry's table,
// bypassing Refresh, for tests that don't have real ZIM files on
// disk.
func (r *Registry) PutForTest(archives ...*Archive) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range archives {
		r.archives[a.ID] = a
	}
}

// Handle returns the opaque native archive handle. Callers must hold
// the registry's GlobalLock before calling any method on it that
// enters native archive code.
func (a *Archive) Handle() *zimfmt.Archive { return a.handle }

// categoryRules classifies an archive from its filename stem, checked
// in order; first match wins. Grounded on spec.md's "tagged variant
// computed once at load time from metadata + a name-regex table."
var categoryRules = []struct {
	pattern  *regexp.Regexp
	category Category
}{
	{regexp.MustCompile(`(?i)wiktionary`), CategoryWiktionary},
	{regexp.MustCompile(`(?i)wikiquote`), CategoryWikiquote},
	{regexp.MustCompile(`(?i)wikipedia`), CategoryWikipedia},
	{regexp.MustCompile(`(?i)stackexchange|stackoverflow`), CategoryStackExchange},
	{regexp.MustCompile(`(?i)devdocs`), CategoryDevDocs},
}

func categorize(stem string) Category {
	for _, r := range categoryRules {
		if r.pattern.MatchString(stem) {
			return r.category
		}
	}
	return CategoryOther
}

var flavorPattern = regexp.MustCompile(`(?i)_(mini|nopic|maxi)(?:_|\.|$)`)

func flavorOf(stem string) string {
	if m := flavorPattern.FindStringSubmatch(stem); len(m) == 2 {
		return strings.ToLower(m[1])
	}
	return "full"
}

// slugify derives a stable archive id from a filename, matching the
// original's identifier convention: filename stem, lowercased,
// non-alphanumeric runs collapsed to a single hyphen.
func slugify(stem string) string {
	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(stem) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Registry holds every currently-open archive plus the locks guarding
// access to them. There is no package-level singleton: callers own an
// instance and thread it through their handlers.
type Registry struct {
	dir     string
	dataDir string

	mu            sync.RWMutex
	archives      map[string]*Archive
	lastRefreshed time.Time

	// GlobalLock guards any operation entering native archive code:
	// full-text search, random entry, blob reads.
	GlobalLock sync.Mutex

	log *slog.Logger
}

// New creates a Registry rooted at dir (the directory scanned for
// *.zim files); dataDir is where per-archive title indexes live
// (<dataDir>/titles/<id>.db).
func New(dir, dataDir string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		dir:      dir,
		dataDir:  dataDir,
		archives: map[string]*Archive{},
		log:      log,
	}
}

// Dir returns the scanned archive directory.
func (r *Registry) Dir() string { return r.dir }

// Get returns the archive by id, or ok=false if unknown.
func (r *Registry) Get(id string) (*Archive, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.archives[id]
	return a, ok
}

// List returns a snapshot of all registered archives, sorted by ID.
func (r *Registry) List() []*Archive {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Archive, 0, len(r.archives))
	for _, a := range r.archives {
		out = append(out, a)
	}
	sortArchivesByID(out)
	return out
}

func sortArchivesByID(as []*Archive) {
	for i := 1; i < len(as); i++ {
		for j := i; j > 0 && as[j].ID < as[j-1].ID; j-- {
			as[j], as[j-1] = as[j-1], as[j]
		}
	}
}

// ErrArchiveGone is returned when a request targets an archive whose
// backing file disappeared mid-operation.
var ErrArchiveGone = fmt.Errorf("registry: archive file no longer present")

// Refresh rescans the archive directory: opens newly added files,
// closes and drops removed ones, and reopens any whose size or mtime
// changed since it was last opened. Corrupt archives are logged and
// skipped, not fatal.
func (r *Registry) Refresh() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("registry: read dir: %w", err)
	}

	seen := map[string]bool{}
	for _, de := range entries {
		if de.IsDir() || !strings.EqualFold(filepath.Ext(de.Name()), ".zim") {
			continue
		}
		path := filepath.Join(r.dir, de.Name())
		fi, err := de.Info()
		if err != nil {
			r.log.Warn("registry: stat failed", "file", de.Name(), "error", err)
			continue
		}
		stem := strings.TrimSuffix(de.Name(), filepath.Ext(de.Name()))
		id := slugify(stem)
		seen[id] = true

		r.mu.RLock()
		existing, ok := r.archives[id]
		r.mu.RUnlock()
		if ok && existing.FileMTime == fi.ModTime().UnixNano() && existing.FileSize == fi.Size() {
			continue
		}

		arc, err := r.openArchive(id, path, stem, fi)
		if err != nil {
			r.log.Warn("registry: failed to open archive, skipping", "path", path, "error", err)
			continue
		}

		r.mu.Lock()
		if old, ok := r.archives[id]; ok {
			if old.handle != nil {
				old.handle.Close()
			}
			if old.Titles != nil {
				old.Titles.Close()
			}
		}
		r.archives[id] = arc
		r.mu.Unlock()

		if !arc.Titles.IsCurrent(arc.FileSize, arc.FileMTime) {
			go r.rebuildTitleIndex(arc)
		} else {
			r.SetHasFTS(arc.ID, arc.Titles.HasFTS())
		}
	}

	// Drop archives whose backing file vanished.
	r.mu.Lock()
	for id, a := range r.archives {
		if !seen[id] {
			if a.handle != nil {
				a.handle.Close()
			}
			if a.Titles != nil {
				a.Titles.Close()
			}
			delete(r.archives, id)
		}
	}
	r.lastRefreshed = time.Now()
	r.mu.Unlock()

	return nil
}

// entryKind classifies a zimfmt entry into the title index's
// article/image/media/other taxonomy, per spec.md §3's title-index
// data model.
func entryKind(mimetype string) string {
	switch {
	case strings.HasPrefix(mimetype, "text/html"):
		return "article"
	case strings.HasPrefix(mimetype, "image/"):
		return "image"
	case strings.HasPrefix(mimetype, "audio/"), strings.HasPrefix(mimetype, "video/"):
		return "media"
	default:
		return "other"
	}
}

// rebuildTitleIndex runs a full title-index build for a, under its
// title lock (exclusive), matching spec.md §4.2's "background worker"
// build description. Failures are recorded via MarkFailed rather than
// propagated; a quarantined archive is simply skipped by phase 1.
func (r *Registry) rebuildTitleIndex(a *Archive) {
	a.title.Lock()
	defer a.title.Unlock()

	h := a.handle
	if h == nil || a.Titles == nil {
		return
	}

	iter := func(yield func(titleindex.SourceEntry) bool) error {
		return h.Entries(func(e zimfmt.Entry) (bool, error) {
			return yield(titleindex.SourceEntry{Path: e.Path, Title: e.Title, Kind: entryKind(e.Mimetype)}), nil
		})
	}

	if err := a.Titles.Build(context.Background(), iter, a.FileSize, a.FileMTime); err != nil {
		r.log.Warn("registry: title index build failed", "archive", a.ID, "error", err)
		a.Titles.MarkFailed()
		return
	}
	r.SetHasFTS(a.ID, a.Titles.HasFTS())
}

func (r *Registry) openArchive(id, path, stem string, fi os.FileInfo) (*Archive, error) {
	h, err := zimfmt.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}
	icon := h.Illustration()

	titles, err := titleindex.Open(r.dataDir, id)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("registry: open title index %s: %w", id, err)
	}

	a := &Archive{
		ID:           id,
		Path:         path,
		Size:         fi.Size(),
		EntryCount:   h.EntryCount(),
		Title:        firstNonEmpty(h.Metadata("Title"), stem),
		Description:  h.Metadata("Description"),
		Language:     h.Metadata("Language"),
		Publisher:    h.Metadata("Publisher"),
		Illustration: icon,
		HasIcon:      len(icon) > 0,
		Flavor:       flavorOf(stem),
		Category:     categorize(stem),
		FileMTime:    fi.ModTime().UnixNano(),
		FileSize:     fi.Size(),
		handle:       h,
		title:        &sync.RWMutex{},
		Titles:       titles,
	}
	return a, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Remove closes and drops the archive from the registry (used by
// /manage/delete).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.archives[id]; ok {
		if a.handle != nil {
			a.handle.Close()
		}
		if a.Titles != nil {
			a.Titles.Close()
		}
		delete(r.archives, id)
	}
}

// Close shuts down every open archive and title index, releasing all
// file handles. Call once on process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.archives {
		if a.handle != nil {
			a.handle.Close()
		}
		if a.Titles != nil {
			a.Titles.Close()
		}
		delete(r.archives, id)
	}
}

// Prewarm touches each archive's main entry once, under the global
// lock, so the first real request doesn't pay archive-open latency.
func (r *Registry) Prewarm() {
	for _, a := range r.List() {
		r.GlobalLock.Lock()
		if a.handle != nil {
			a.handle.MainEntry()
		}
		r.GlobalLock.Unlock()
	}
}

// SetHasFTS records whether an archive's title index carries a full
// FTS table, used by /list's has_fts field.
func (r *Registry) SetHasFTS(id string, has bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.archives[id]; ok {
		a.HasFTS = has
	}
}

// LastRefreshed reports the time of the most recently completed
// Refresh call, exposed for /manage/status. Zero until the first
// Refresh completes.
func (r *Registry) LastRefreshed() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefreshed
}
