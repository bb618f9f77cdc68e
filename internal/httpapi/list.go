package httpapi

import (
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/zimi-go/zimi/internal/apperr"
)

// listEntry is one archive's summary row, per spec.md §6's /list
// response shape.
type listEntry struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Language        string `json:"language"`
	Entries         int    `json:"entries"`
	Size            int64  `json:"size"`
	SizeHuman       string `json:"size_human"`
	Category        string `json:"category"`
	HasFTS          bool   `json:"has_fts"`
	UpdateAvailable bool   `json:"update_available"`
}

func (a *api) handleList(w http.ResponseWriter, r *http.Request) {
	archives := a.Registry.List()

	updates := a.pendingUpdates()

	out := make([]listEntry, 0, len(archives))
	for _, arc := range archives {
		out = append(out, listEntry{
			ID:              arc.ID,
			Title:           arc.Title,
			Description:     arc.Description,
			Language:        arc.Language,
			Entries:         arc.EntryCount,
			Size:            arc.Size,
			SizeHuman:       humanize.Bytes(uint64(arc.Size)),
			Category:        string(arc.Category),
			HasFTS:          arc.HasFTS,
			UpdateAvailable: updates[arc.ID],
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// pendingUpdates reports the last GET /manage/check-updates
// result, used to populate /list's update_available flag without
// re-hitting the Kiwix catalog on every /list request.
func (a *api) pendingUpdates() map[string]bool {
	a.updatesMu.Lock()
	defer a.updatesMu.Unlock()
	return a.updates
}

func (a *api) handleCatalog(w http.ResponseWriter, r *http.Request) {
	zim := r.URL.Query().Get("zim")
	if zim == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing zim parameter"))
		return
	}
	if _, ok := a.Registry.Get(zim); !ok {
		writeError(w, apperr.New(apperr.NotFound, "archive '"+zim+"' not found"))
		return
	}
	cat, err := a.Reader.Catalog(zim)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.NotFound, "no catalog for archive '"+zim+"'", err))
		return
	}
	writeJSON(w, http.StatusOK, cat)
}
