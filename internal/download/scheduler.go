package download

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zimi-go/zimi/internal/registry"
)

// Cadence is an auto-update schedule, per spec.md §4.7.
type Cadence string

const (
	CadenceOff     Cadence = "off"
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

func (c Cadence) interval() time.Duration {
	switch c {
	case CadenceDaily:
		return 24 * time.Hour
	case CadenceWeekly:
		return 7 * 24 * time.Hour
	case CadenceMonthly:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// checkTickInterval is how often the scheduler wakes to see whether
// the configured cadence's interval has elapsed. Grounded on
// veille/internal/scheduler.Scheduler's ticker-plus-due-check shape,
// generalized from "poll a DB for due rows" to "poll a wall-clock
// cadence".
const checkTickInterval = time.Hour

// Scheduler runs the auto-update cycle (check-updates -> download
// newer -> replace -> refresh) on a daily/weekly/monthly cadence, per
// spec.md §4.7 ("Auto-update scheduler"). Only one cycle runs at a
// time, enforced by runMu.
type Scheduler struct {
	mgr    *Manager
	reg    *registry.Registry
	client *http.Client
	log    *slog.Logger

	mu      sync.Mutex
	cadence Cadence
	lastRun time.Time
	runMu   sync.Mutex
}

// NewScheduler creates a Scheduler with auto-update initially off.
func NewScheduler(mgr *Manager, reg *registry.Registry, client *http.Client, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{mgr: mgr, reg: reg, client: client, log: log, cadence: CadenceOff}
}

// SetCadence changes the auto-update schedule. CadenceOff disables it.
func (s *Scheduler) SetCadence(c Cadence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cadence = c
}

// Cadence returns the current auto-update schedule.
func (s *Scheduler) Cadence() Cadence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cadence
}

// Run polls hourly for a due cadence tick. Blocks until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(checkTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maybeRun(ctx)
		}
	}
}

func (s *Scheduler) maybeRun(ctx context.Context) {
	s.mu.Lock()
	cadence := s.cadence
	due := cadence != CadenceOff && time.Since(s.lastRun) >= cadence.interval()
	s.mu.Unlock()
	if !due {
		return
	}

	// Single-flight: skip this tick if a cycle is already running,
	// per spec.md's "only one auto-update may run at a time".
	if !s.runMu.TryLock() {
		return
	}
	defer s.runMu.Unlock()

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()

	s.runCycle(ctx)
}

// runCycle executes check-updates -> download newer -> replace ->
// refresh for every archive with a pending update.
func (s *Scheduler) runCycle(ctx context.Context) {
	updates, err := CheckUpdates(ctx, s.client, s.reg)
	if err != nil {
		s.log.Warn("download: auto-update check-updates failed", "error", err)
		return
	}
	for _, u := range updates {
		if u.DownloadURL == "" {
			continue
		}
		task, err := s.mgr.Start(ctx, u.DownloadURL, true)
		if err != nil {
			s.log.Warn("download: auto-update start failed", "archive", u.Name, "error", err)
			continue
		}
		s.log.Info("download: auto-update started", "archive", u.Name, "task", task.ID)
	}
}
