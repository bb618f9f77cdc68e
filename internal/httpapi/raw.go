package httpapi

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zimi-go/zimi/internal/apperr"
)

// handleRawEntry serves an archive entry's raw bytes, with Range
// support for media per spec.md §4.6. http.ServeContent already
// implements conditional GET and byte-range parsing correctly against
// an io.ReadSeeker, so the entry's decoded blob is wrapped in a
// bytes.Reader rather than hand-rolling Range header parsing.
func (a *api) handleRawEntry(w http.ResponseWriter, r *http.Request) {
	zim := chi.URLParam(r, "zim")
	path := chi.URLParam(r, "*")
	if zim == "" || path == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing zim/path"))
		return
	}

	arc, ok := a.Registry.Get(zim)
	if !ok {
		writeError(w, apperr.New(apperr.NotFound, "archive '"+zim+"' not found"))
		return
	}
	h := arc.Handle()
	if h == nil {
		writeError(w, apperr.New(apperr.ArchiveGone, "archive '"+zim+"' is no longer available"))
		return
	}

	a.Registry.GlobalLock.Lock()
	entry, err := h.GetEntryByPath(path)
	if err == nil {
		entry, err = h.Resolve(entry)
	}
	var data []byte
	if err == nil {
		data, err = entry.Read()
	}
	a.Registry.GlobalLock.Unlock()
	if err != nil {
		writeError(w, apperr.Wrap(apperr.NotFound, "entry '"+path+"' not found in '"+zim+"'", err))
		return
	}

	if entry.Mimetype != "" {
		w.Header().Set("Content-Type", entry.Mimetype)
	}
	http.ServeContent(w, r, path, time.Unix(arc.FileMTime, 0), bytes.NewReader(data))
}
