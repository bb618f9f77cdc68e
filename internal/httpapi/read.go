package httpapi

import (
	"errors"
	"math/rand"
	"net/http"

	"github.com/zimi-go/zimi/internal/apperr"
	"github.com/zimi-go/zimi/internal/registry"
)

// readMaxLength caps ?max_length, mirroring the original's
// READ_MAX_LENGTH clamp.
const readMaxLength = 200_000

// defaultReadLength is used when ?max_length is absent, mirroring the
// original's MAX_CONTENT_LENGTH.
const defaultReadLength = 4000

func (a *api) handleRead(w http.ResponseWriter, r *http.Request) {
	zim := r.URL.Query().Get("zim")
	path := r.URL.Query().Get("path")
	if zim == "" || path == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing zim and path parameters"))
		return
	}
	maxLength := queryInt(r, "max_length", defaultReadLength)
	if maxLength > readMaxLength {
		maxLength = readMaxLength
	}

	article, err := a.Reader.Read(r.Context(), zim, path, maxLength)
	if err != nil {
		writeError(w, toAppErr(err, zim))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"title": article.Title,
		"text":  article.Text,
		"mime":  article.Mime,
	})
}

func (a *api) handleSnippet(w http.ResponseWriter, r *http.Request) {
	zim := r.URL.Query().Get("zim")
	path := r.URL.Query().Get("path")
	if zim == "" || path == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing zim and path parameters"))
		return
	}
	snippet, err := a.Reader.Snippet(r.Context(), zim, path)
	if err != nil {
		writeError(w, toAppErr(err, zim))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"snippet": snippet})
}

func (a *api) handleRandom(w http.ResponseWriter, r *http.Request) {
	zim := r.URL.Query().Get("zim")

	var candidates []*registry.Archive
	if zim != "" {
		arc, ok := a.Registry.Get(zim)
		if !ok {
			writeError(w, apperr.New(apperr.NotFound, "archive '"+zim+"' not found"))
			return
		}
		candidates = []*registry.Archive{arc}
	} else {
		candidates = a.Registry.List()
	}
	if len(candidates) == 0 {
		writeError(w, apperr.New(apperr.NotFound, "no archives available"))
		return
	}
	arc := candidates[rand.Intn(len(candidates))]
	h := arc.Handle()
	if h == nil {
		writeError(w, apperr.New(apperr.ArchiveGone, "archive gone"))
		return
	}

	a.Registry.GlobalLock.Lock()
	entry, err := h.RandomEntry(rand.Float64())
	a.Registry.GlobalLock.Unlock()
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "no entry found", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"archive": arc.ID,
		"path":    entry.Path,
		"title":   entry.Title,
	})
}

// toAppErr maps a reader/registry error to the apperr.Kind the HTTP
// layer's status table expects, per spec.md §7.
func toAppErr(err error, zim string) error {
	if errors.Is(err, registry.ErrArchiveGone) {
		return apperr.Wrap(apperr.ArchiveGone, "archive '"+zim+"' is no longer available", err)
	}
	return apperr.Wrap(apperr.NotFound, "entry not found", err)
}
