package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zimi-go/zimi/internal/idgen"
	"github.com/zimi-go/zimi/internal/registry"
	"github.com/zimi-go/zimi/internal/safeio"
)

// chunkSize matches spec.md §5's cancellation-boundary contract
// ("the transfer loop observes cancellation within one chunk (<=
// 64 KB)"), ported from the original's resp.read(65536).
const chunkSize = 64 * 1024

// staleTmpAge is how old an orphaned .tmp file must be before startup
// cleanup deletes it, per spec.md §4.7 ("Stale cleanup").
const staleTmpAge = 24 * time.Hour

// retryDelays are the exponential backoff intervals for 5xx/network
// failures, per spec.md §7 ("retry up to 3 with exponential backoff
// (1s, 4s, 16s)").
var retryDelays = []time.Duration{time.Second, 4 * time.Second, 16 * time.Second}

// State is a download task's lifecycle state, per spec.md §4.7's
// state machine.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Task is one download/update in progress, per spec.md §3's
// "Download task" record.
type Task struct {
	ID              string `json:"id"`
	Slug            string `json:"slug"` // catalog slug; at most one active task per slug
	URL             string `json:"url"`
	Filename        string `json:"filename"`
	State           State  `json:"state"`
	Error           string `json:"error,omitempty"`
	// TotalBytes and DownloadedBytes are written from the transfer
	// goroutine via the sync/atomic functions (attempt) and read the
	// same way by snapshotLocked; every other field is only touched
	// under Manager.mu.
	TotalBytes      int64 `json:"total_bytes"`
	DownloadedBytes int64 `json:"downloaded_bytes"`
	IsUpdate        bool  `json:"is_update"`
	StartedAt       int64 `json:"started_at"`
	FinishedAt      int64 `json:"finished_at,omitempty"`

	cancel context.CancelFunc
}

// HistoryEvent is one append-only history record, per spec.md §3.
type HistoryEvent struct {
	Event     string `json:"event"` // downloaded, updated, deleted, download_failed
	Timestamp int64  `json:"ts"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HistorySink records download outcomes; internal/state implements
// it.
type HistorySink interface {
	AppendHistory(HistoryEvent)
}

// Manager runs at most one active download per catalog slug,
// grounded on veille/internal/fetch.Fetcher's conditional-GET/SSRF
// idiom generalized to resumable range requests, and on the
// original's _download_thread/_start_download protocol.
type Manager struct {
	zimDir  string
	reg     *registry.Registry
	client  *http.Client
	history HistorySink
	log     *slog.Logger
	gen     idgen.Generator

	mu    sync.Mutex
	tasks map[string]*Task // by slug
}

// New creates a Manager that downloads into zimDir and refreshes reg
// on completion.
func New(zimDir string, reg *registry.Registry, history HistorySink, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		zimDir:  zimDir,
		reg:     reg,
		client:  &http.Client{Timeout: 0}, // downloads have no overall timeout; chunked read loop honors cancellation
		history: history,
		log:     log,
		gen:     idgen.Prefixed("dl_", idgen.Short(12)),
		tasks:   map[string]*Task{},
	}
}

var filenameCharsRe = regexp.MustCompile(`^[\w.\-]+$`)

// Start begins a new download, per spec.md §4.7's protocol. Returns
// ErrAlreadyActive if slug already has a running task (409 Conflict
// at the HTTP layer).
func (m *Manager) Start(ctx context.Context, downloadURL string, isUpdate bool) (*Task, error) {
	if !strings.HasPrefix(downloadURL, "https://download.kiwix.org/") {
		return nil, fmt.Errorf("download: url must be from download.kiwix.org")
	}
	downloadURL = strings.TrimSuffix(downloadURL, ".meta4")

	filename := filepath.Base(strings.Split(downloadURL, "?")[0])
	if err := safeio.SafeFilename(filename); err != nil {
		return nil, fmt.Errorf("download: invalid filename: %w", err)
	}
	if !strings.HasSuffix(filename, ".zim") {
		return nil, fmt.Errorf("download: only .zim files can be downloaded")
	}
	if !filenameCharsRe.MatchString(filename) {
		return nil, fmt.Errorf("download: invalid characters in filename")
	}

	slug, _ := ExtractDateStamp(filename)

	m.mu.Lock()
	if existing, ok := m.tasks[slug]; ok && (existing.State == StateQueued || existing.State == StateRunning) {
		m.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	taskCtx, cancel := context.WithCancel(context.Background())
	task := &Task{
		ID:        m.gen(),
		Slug:      slug,
		URL:       downloadURL,
		Filename:  filename,
		State:     StateQueued,
		IsUpdate:  isUpdate,
		StartedAt: time.Now().Unix(),
		cancel:    cancel,
	}
	m.tasks[slug] = task
	out := m.snapshotLocked(task)
	m.mu.Unlock()

	go m.run(taskCtx, task)
	return out, nil
}

// ErrAlreadyActive is returned when a slug already has a queued or
// running download, per spec.md §6's 409 status.
var ErrAlreadyActive = fmt.Errorf("download: a download is already active for this archive")

// snapshotLocked copies t's fields into a fresh Task, reading
// TotalBytes/DownloadedBytes atomically since attempt mutates them
// from the transfer goroutine without holding m.mu. Callers must hold
// m.mu. The copy's cancel is cleared: it is never valid to call on a
// snapshot, only on the live task tracked in m.tasks.
func (m *Manager) snapshotLocked(t *Task) *Task {
	c := *t
	c.TotalBytes = atomic.LoadInt64(&t.TotalBytes)
	c.DownloadedBytes = atomic.LoadInt64(&t.DownloadedBytes)
	c.cancel = nil
	return &c
}

// Get returns a snapshot of the task for slug, if any.
func (m *Manager) Get(slug string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[slug]
	if !ok {
		return nil, false
	}
	return m.snapshotLocked(t), true
}

// List returns a snapshot of every tracked task.
func (m *Manager) List() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, m.snapshotLocked(t))
	}
	return out
}

// Cancel transitions a running task to cancelled, per spec.md §4.7:
// the transfer loop observes it at the next chunk boundary and keeps
// the .tmp file for later resume.
func (m *Manager) Cancel(slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[slug]
	if !ok || (t.State != StateQueued && t.State != StateRunning) {
		return fmt.Errorf("download: no active task for %q", slug)
	}
	t.cancel()
	return nil
}

func (m *Manager) dest(filename string) string {
	return filepath.Join(m.zimDir, filename)
}

func (m *Manager) run(ctx context.Context, task *Task) {
	m.setState(task, StateRunning, "")

	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		err := m.attempt(ctx, task)
		if err == nil {
			m.finish(task)
			return
		}
		if ctx.Err() != nil {
			m.setState(task, StateCancelled, "cancelled")
			return
		}
		lastErr = err
		if !isRetryable(err) || attempt == len(retryDelays) {
			break
		}
		select {
		case <-time.After(retryDelays[attempt]):
		case <-ctx.Done():
			m.setState(task, StateCancelled, "cancelled")
			return
		}
	}

	m.setState(task, StateFailed, lastErr.Error())
	if m.history != nil {
		m.history.AppendHistory(HistoryEvent{Event: "download_failed", Timestamp: time.Now().Unix(), Filename: task.Filename, Error: lastErr.Error()})
	}
}

// retryableErr wraps an error that should be retried per spec.md
// §7's "retry on 5xx/network; 4xx is terminal" rule.
type retryableErr struct{ err error }

func (r *retryableErr) Error() string { return r.err.Error() }
func (r *retryableErr) Unwrap() error { return r.err }

func isRetryable(err error) bool {
	_, ok := err.(*retryableErr)
	return ok
}

// attempt performs one full (possibly resumed) transfer attempt,
// mirroring original_source/zimi/server.py's _download_thread.
func (m *Manager) attempt(ctx context.Context, task *Task) error {
	tmpPath := m.dest(task.Filename) + ".tmp"

	var existingSize int64
	if fi, err := os.Stat(tmpPath); err == nil {
		existingSize = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Zimi/1.0")
	if existingSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existingSize))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return &retryableErr{err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && existingSize > 0 {
		return os.Rename(tmpPath, m.dest(task.Filename))
	}
	if resp.StatusCode >= 500 {
		return &retryableErr{fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY
	var total int64
	if resp.StatusCode == http.StatusPartialContent {
		total = parseContentRangeTotal(resp.Header.Get("Content-Range"), existingSize, resp.ContentLength)
		flags |= os.O_APPEND
		atomic.StoreInt64(&task.DownloadedBytes, existingSize)
	} else {
		total = resp.ContentLength
		flags |= os.O_TRUNC
		existingSize = 0
		atomic.StoreInt64(&task.DownloadedBytes, 0)
	}
	atomic.StoreInt64(&task.TotalBytes, total)

	f, err := os.OpenFile(tmpPath, flags, 0o644)
	if err != nil {
		return &retryableErr{err}
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return &retryableErr{werr}
			}
			atomic.AddInt64(&task.DownloadedBytes, int64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return &retryableErr{rerr}
		}
	}

	if total > 0 {
		if fi, err := os.Stat(tmpPath); err == nil && fi.Size() != total {
			os.Remove(tmpPath)
			return fmt.Errorf("size mismatch: expected %d, got %d", total, fi.Size())
		}
	}

	return os.Rename(tmpPath, m.dest(task.Filename))
}

func parseContentRangeTotal(contentRange string, existingSize, contentLength int64) int64 {
	if i := strings.LastIndex(contentRange, "/"); i >= 0 {
		if n, err := strconv.ParseInt(contentRange[i+1:], 10, 64); err == nil {
			return n
		}
	}
	return existingSize + contentLength
}

func (m *Manager) setState(t *Task, s State, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.State = s
	t.Error = errMsg
	if s == StateComplete || s == StateFailed || s == StateCancelled {
		t.FinishedAt = time.Now().Unix()
	}
}

// finish handles a successful transfer: removes superseded flavors,
// refreshes the registry, and appends a history event, per spec.md
// §4.7 step 5.
func (m *Manager) finish(task *Task) {
	m.setState(task, StateComplete, "")

	base, _ := ExtractDateStamp(task.Filename)
	entries, err := os.ReadDir(m.zimDir)
	if err == nil {
		for _, de := range entries {
			name := de.Name()
			if name == task.Filename || !strings.HasPrefix(name, base+"_") || !strings.HasSuffix(name, ".zim") {
				continue
			}
			os.Remove(filepath.Join(m.zimDir, name))
		}
	}

	if err := m.reg.Refresh(); err != nil {
		m.log.Warn("download: registry refresh after download failed", "error", err)
	}

	if m.history != nil {
		event := "downloaded"
		if task.IsUpdate {
			event = "updated"
		}
		m.history.AppendHistory(HistoryEvent{Event: event, Timestamp: time.Now().Unix(), Filename: task.Filename, SizeBytes: task.TotalBytes})
	}
}

// CleanStaleTemp removes orphaned .tmp files older than staleTmpAge
// with no matching active task, per spec.md §4.7 ("Stale cleanup").
// Call once at startup.
func (m *Manager) CleanStaleTemp() {
	entries, err := os.ReadDir(m.zimDir)
	if err != nil {
		return
	}
	m.mu.Lock()
	active := make(map[string]bool, len(m.tasks))
	for _, t := range m.tasks {
		active[t.Filename] = true
	}
	m.mu.Unlock()

	cutoff := time.Now().Add(-staleTmpAge)
	for _, de := range entries {
		name := de.Name()
		if !strings.HasSuffix(name, ".zim.tmp") {
			continue
		}
		if active[strings.TrimSuffix(name, ".tmp")] {
			continue
		}
		fi, err := de.Info()
		if err != nil || fi.ModTime().After(cutoff) {
			continue
		}
		os.Remove(filepath.Join(m.zimDir, name))
	}
}
