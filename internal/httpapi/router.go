package httpapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zimi-go/zimi/internal/authn"
	"github.com/zimi-go/zimi/internal/download"
	"github.com/zimi-go/zimi/internal/metrics"
	"github.com/zimi-go/zimi/internal/ratelimit"
	"github.com/zimi-go/zimi/internal/reader"
	"github.com/zimi-go/zimi/internal/registry"
	"github.com/zimi-go/zimi/internal/resolve"
	"github.com/zimi-go/zimi/internal/search"
	"github.com/zimi-go/zimi/internal/state"
)

// Version is reported by GET /health.
const Version = "1.0.0"

// Deps bundles every component NewRouter wires into handlers.
type Deps struct {
	Registry  *registry.Registry
	Engine    *search.Engine
	Caches    *search.Caches
	Reader    *reader.Reader
	Resolver  *resolve.Resolver
	Manager   *download.Manager
	Scheduler *download.Scheduler
	Store     *state.Store
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Recorder
	Log       *slog.Logger

	// HTTPClient is used for outbound Kiwix catalog requests
	// (/manage/catalog, /manage/check-updates). Defaults to a
	// 30s-timeout client if nil.
	HTTPClient *http.Client
}

type api struct {
	Deps

	updatesMu sync.Mutex
	updates   map[string]bool // archive id -> update available, from the last /manage/check-updates
}

// NewRouter builds the full chi router for spec.md §6's HTTP surface,
// following cmd/chrc/main.go's r.Use/r.Get/r.Route/r.Group idiom: a
// flat middleware stack (rate limiting, then per-route metrics
// wrapping), plain routes for public endpoints, and an authenticated
// r.Group for /manage/* and mutating collection routes.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	a := &api{Deps: d}

	r := chi.NewRouter()
	r.Use(headToGet)
	r.Use(securityHeaders)
	r.Use(a.Limiter.Middleware)

	r.Get("/health", a.Metrics.Wrap("/health", a.handleHealth))
	r.Get("/search", a.Metrics.Wrap("/search", a.handleSearch))
	r.Get("/suggest", a.Metrics.Wrap("/suggest", a.handleSuggest))
	r.Get("/read", a.Metrics.Wrap("/read", a.handleRead))
	r.Get("/snippet", a.Metrics.Wrap("/snippet", a.handleSnippet))
	r.Get("/random", a.Metrics.Wrap("/random", a.handleRandom))
	r.Get("/list", a.Metrics.Wrap("/list", a.handleList))
	r.Get("/catalog", a.Metrics.Wrap("/catalog", a.handleCatalog))
	r.Get("/resolve", a.Metrics.Wrap("/resolve", a.handleResolveGet))
	r.Post("/resolve", a.Metrics.Wrap("/resolve", a.handleResolvePost))
	r.Get("/collections", a.Metrics.Wrap("/collections", a.handleCollectionsList))

	r.Group(func(r chi.Router) {
		r.Use(authn.RequireAuth(a.Store))
		r.Post("/collections", a.Metrics.Wrap("/collections", a.handleCollectionsSave))
		r.Delete("/collections", a.Metrics.Wrap("/collections", a.handleCollectionsDelete))

		r.Route("/manage", func(r chi.Router) {
			r.Get("/status", a.Metrics.Wrap("/manage/status", a.handleManageStatus))
			r.Get("/catalog", a.Metrics.Wrap("/manage/catalog", a.handleManageCatalog))
			r.Get("/check-updates", a.Metrics.Wrap("/manage/check-updates", a.handleManageCheckUpdates))
			r.Get("/downloads", a.Metrics.Wrap("/manage/downloads", a.handleManageDownloads))
			r.Post("/download", a.Metrics.Wrap("/manage/download", a.handleManageDownload))
			r.Post("/update", a.Metrics.Wrap("/manage/update", a.handleManageUpdate))
			r.Delete("/delete", a.Metrics.Wrap("/manage/delete", a.handleManageDelete))
			r.Post("/cancel", a.Metrics.Wrap("/manage/cancel", a.handleManageCancel))
			r.Post("/refresh", a.Metrics.Wrap("/manage/refresh", a.handleManageRefresh))
			r.Get("/stats", a.Metrics.Wrap("/manage/stats", a.handleManageStats))
			r.Post("/build-fts", a.Metrics.Wrap("/manage/build-fts", a.handleManageBuildFTS))
			r.Post("/auto-update", a.Metrics.Wrap("/manage/auto-update", a.handleManageAutoUpdate))
		})
	})

	r.Get("/w/{zim}/*", a.Metrics.Wrap("/w/*", a.handleRawEntry))

	return r
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": Version})
}
