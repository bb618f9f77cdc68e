package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zimi-go/zimi/internal/apperr"
	"github.com/zimi-go/zimi/internal/download"
)

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (a *api) handleManageStatus(w http.ResponseWriter, r *http.Request) {
	archives := a.Registry.List()
	var totalSize int64
	for _, arc := range archives {
		totalSize += arc.Size
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"zim_count":          len(archives),
		"total_size":         totalSize,
		"total_size_human":   humanize.Bytes(uint64(totalSize)),
		"manage_enabled":     true,
		"rate_limit_stats":   a.Limiter.Stats(),
		"auto_update":        a.Scheduler.Cadence(),
		"uptime_seconds":     a.Metrics.Uptime().Seconds(),
		"last_refreshed":     a.Registry.LastRefreshed(),
		"last_refreshed_ago": humanize.Time(a.Registry.LastRefreshed()),
	})
}

// handleManageCatalog proxies the Kiwix OPDS catalog search, marking
// entries already installed, per spec.md §4.7 point 1.
func (a *api) handleManageCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	lang := r.URL.Query().Get("lang")
	count := queryInt(r, "count", 20)
	start := queryInt(r, "start", 0)

	installed := map[string]bool{}
	for _, arc := range a.Registry.List() {
		base, _ := download.ExtractDateStamp(filepath.Base(arc.Path))
		installed[strings.ToLower(base)] = true
	}

	total, items, err := download.FetchCatalog(r.Context(), a.HTTPClient, q, lang, count, start, installed)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "catalog fetch failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "items": items})
}

func (a *api) handleManageCheckUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := download.CheckUpdates(r.Context(), a.HTTPClient, a.Registry)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "check-updates failed", err))
		return
	}

	pending := make(map[string]bool, len(updates))
	for _, u := range updates {
		pending[u.Name] = true
	}
	a.updatesMu.Lock()
	a.updates = pending
	a.updatesMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"updates": updates})
}

// taskView adds human-readable byte counts to a download.Task for
// JSON responses, without teaching internal/download about HTTP
// formatting concerns.
type taskView struct {
	*download.Task
	TotalBytesHuman      string `json:"total_bytes_human"`
	DownloadedBytesHuman string `json:"downloaded_bytes_human"`
}

func viewTask(t *download.Task) taskView {
	return taskView{
		Task:                 t,
		TotalBytesHuman:      humanize.Bytes(uint64(t.TotalBytes)),
		DownloadedBytesHuman: humanize.Bytes(uint64(t.DownloadedBytes)),
	}
}

func (a *api) handleManageDownloads(w http.ResponseWriter, r *http.Request) {
	tasks := a.Manager.List()
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, viewTask(t))
	}
	writeJSON(w, http.StatusOK, views)
}

type downloadRequest struct {
	URL string `json:"url"`
}

func (a *api) handleManageDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing url field"))
		return
	}
	task, err := a.Manager.Start(r.Context(), body.URL, false)
	if err != nil {
		writeError(w, downloadStartErr(err))
		return
	}
	writeJSON(w, http.StatusOK, viewTask(task))
}

func (a *api) handleManageUpdate(w http.ResponseWriter, r *http.Request) {
	var body downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing url field"))
		return
	}
	task, err := a.Manager.Start(r.Context(), body.URL, true)
	if err != nil {
		writeError(w, downloadStartErr(err))
		return
	}
	writeJSON(w, http.StatusOK, viewTask(task))
}

// downloadStartErr maps Manager.Start's plain errors to apperr kinds:
// ErrAlreadyActive is spec.md §6's 409, everything else is a
// malformed request (bad URL/filename).
func downloadStartErr(err error) error {
	if err == download.ErrAlreadyActive {
		return apperr.Wrap(apperr.Conflict, "a download is already active for this archive", err)
	}
	return apperr.Wrap(apperr.BadRequest, "invalid download request", err)
}

func (a *api) handleManageDelete(w http.ResponseWriter, r *http.Request) {
	zim := r.URL.Query().Get("zim")
	if zim == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing zim parameter"))
		return
	}
	arc, ok := a.Registry.Get(zim)
	if !ok {
		writeError(w, apperr.New(apperr.NotFound, "archive '"+zim+"' not found"))
		return
	}
	path := arc.Path
	a.Registry.Remove(zim)
	a.Caches.Invalidate()
	a.Resolver.Rebuild()
	if err := removeFile(path); err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "delete failed", err))
		return
	}
	a.Store.AppendHistory(download.HistoryEvent{Event: "deleted", Timestamp: time.Now().Unix(), Filename: path})
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *api) handleManageCancel(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing slug parameter"))
		return
	}
	if err := a.Manager.Cancel(slug); err != nil {
		writeError(w, apperr.Wrap(apperr.NotFound, "no active task for '"+slug+"'", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (a *api) handleManageRefresh(w http.ResponseWriter, r *http.Request) {
	if err := a.Registry.Refresh(); err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "refresh failed", err))
		return
	}
	a.Caches.Invalidate()
	a.Resolver.Rebuild()
	if err := a.Store.SaveCache(a.Registry.List()); err != nil {
		a.Log.Warn("httpapi: save archive cache failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]int{"zim_count": len(a.Registry.List())})
}

func (a *api) handleManageStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"routes":      a.Metrics.Snapshot(),
		"uptime_secs": a.Metrics.Uptime().Seconds(),
		"rate_limit":  a.Limiter.Stats(),
	})
}

func (a *api) handleManageBuildFTS(w http.ResponseWriter, r *http.Request) {
	zim := r.URL.Query().Get("zim")
	if zim == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing zim parameter"))
		return
	}
	arc, ok := a.Registry.Get(zim)
	if !ok || arc.Titles == nil {
		writeError(w, apperr.New(apperr.NotFound, "archive '"+zim+"' not found"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()
	if err := arc.Titles.BuildFTS(ctx); err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "build-fts failed", err))
		return
	}
	a.Registry.SetHasFTS(zim, true)
	a.Caches.Invalidate()
	writeJSON(w, http.StatusOK, map[string]bool{"built": true})
}

type autoUpdateRequest struct {
	Cadence string `json:"cadence"` // off, daily, weekly, monthly
}

func (a *api) handleManageAutoUpdate(w http.ResponseWriter, r *http.Request) {
	var body autoUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Wrap(apperr.BadRequest, "invalid JSON body", err))
		return
	}
	c := download.Cadence(body.Cadence)
	switch c {
	case download.CadenceOff, download.CadenceDaily, download.CadenceWeekly, download.CadenceMonthly:
	default:
		writeError(w, apperr.New(apperr.BadRequest, "cadence must be one of off/daily/weekly/monthly"))
		return
	}
	a.Scheduler.SetCadence(c)
	writeJSON(w, http.StatusOK, map[string]string{"cadence": string(c)})
}
