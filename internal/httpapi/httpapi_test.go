package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zimi-go/zimi/internal/apperr"
	"github.com/zimi-go/zimi/internal/download"
	"github.com/zimi-go/zimi/internal/metrics"
	"github.com/zimi-go/zimi/internal/ratelimit"
	"github.com/zimi-go/zimi/internal/reader"
	"github.com/zimi-go/zimi/internal/registry"
	"github.com/zimi-go/zimi/internal/resolve"
	"github.com/zimi-go/zimi/internal/search"
	"github.com/zimi-go/zimi/internal/state"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	dataDir := t.TempDir()
	reg := registry.New(dir, dataDir, nil)
	store := state.New(dataDir, nil)
	mgr := download.New(dir, reg, store, nil)

	return NewRouter(Deps{
		Registry:  reg,
		Engine:    search.New(reg, nil),
		Caches:    search.NewCaches(),
		Reader:    reader.New(reg),
		Resolver:  resolve.New(reg),
		Manager:   mgr,
		Scheduler: download.NewScheduler(mgr, reg, nil, nil),
		Store:     store,
		Limiter:   ratelimit.New(60),
		Metrics:   metrics.New(),
	})
}

func TestHandleHealthReturnsOK(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %#v", body)
	}
}

func TestHandleListReturnsEmptyArrayWhenNoArchives(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/list", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body []listEntry
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty list, got %v", body)
	}
}

func TestHandleSearchMissingQueryReturns400(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleReadMissingParamsReturns400(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleCatalogUnknownArchiveReturns404(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/catalog?zim=nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestManageRoutesRequireAuthWhenPasswordSet(t *testing.T) {
	dir := t.TempDir()
	dataDir := t.TempDir()
	reg := registry.New(dir, dataDir, nil)
	store := state.New(dataDir, nil)
	if err := store.SetPassword("secret"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	mgr := download.New(dir, reg, store, nil)

	r := NewRouter(Deps{
		Registry:  reg,
		Engine:    search.New(reg, nil),
		Caches:    search.NewCaches(),
		Reader:    reader.New(reg),
		Resolver:  resolve.New(reg),
		Manager:   mgr,
		Scheduler: download.NewScheduler(mgr, reg, nil, nil),
		Store:     store,
		Limiter:   ratelimit.New(60),
		Metrics:   metrics.New(),
	})

	req := httptest.NewRequest(http.MethodGet, "/manage/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/manage/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestDownloadStartErrMapsAlreadyActiveToConflict(t *testing.T) {
	err := downloadStartErr(download.ErrAlreadyActive)
	if apperr.Status(err) != http.StatusConflict {
		t.Fatalf("expected 409, got %d", apperr.Status(err))
	}
}

func TestDownloadStartErrMapsOtherErrorsToBadRequest(t *testing.T) {
	err := downloadStartErr(errBoom)
	if apperr.Status(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", apperr.Status(err))
	}
}

var errBoom = apperr.New(apperr.Internal, "boom")
