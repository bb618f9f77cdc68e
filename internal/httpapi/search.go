package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/zimi-go/zimi/internal/apperr"
	"github.com/zimi-go/zimi/internal/search"
)

// maxSearchLimit caps the limit query param, mirroring the original's
// MAX_SEARCH_LIMIT clamp so a single request can't force an
// unbounded scan.
const maxSearchLimit = 50

// resolveScope turns the zim/collection query params into a search
// scope (archive IDs), per original_source/zimi/server.py's
// "collection wins, then comma-separated zim=, else nil" precedence.
func (a *api) resolveScope(r *http.Request) ([]string, error) {
	if name := r.URL.Query().Get("collection"); name != "" {
		members, ok := a.Store.ListCollections()[name]
		if !ok {
			return nil, apperr.New(apperr.BadRequest, "collection '"+name+"' not found")
		}
		return members, nil
	}
	if zim := r.URL.Query().Get("zim"); zim != "" {
		var scope []string
		for _, z := range strings.Split(zim, ",") {
			if z = strings.TrimSpace(z); z != "" {
				scope = append(scope, z)
			}
		}
		return scope, nil
	}
	return nil, nil
}

func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing q parameter"))
		return
	}
	scope, err := a.resolveScope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := queryInt(r, "limit", 10)
	if limit < 1 {
		limit = 1
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	result, err := a.Engine.Search(r.Context(), a.Caches, search.Query{
		Text:  q,
		Limit: limit,
		Scope: scope,
		Fast:  queryBool(r, "fast", false),
	})
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "search failed", err))
		return
	}

	// Snippets are filled only for the final truncated set, per
	// spec.md §4.3.
	for i := range result.Results {
		hit := &result.Results[i]
		if snippet, err := a.Reader.Snippet(r.Context(), hit.ArchiveID, hit.Path); err == nil {
			hit.Snippet = snippet
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing q parameter"))
		return
	}
	scope, err := a.resolveScope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := queryInt(r, "limit", 10)
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	archiveID := ""
	if len(scope) == 1 {
		archiveID = scope[0]
	}

	var suggestions []search.Suggestion
	if archiveID != "" || len(scope) == 0 {
		suggestions, err = a.Engine.Suggest(r.Context(), a.Caches, archiveID, q, limit)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.Internal, "suggest failed", err))
			return
		}
	} else {
		for _, id := range scope {
			hits, err := a.Engine.Suggest(r.Context(), a.Caches, id, q, limit)
			if err != nil {
				continue
			}
			suggestions = append(suggestions, hits...)
		}
		sort.Slice(suggestions, func(i, j int) bool { return suggestions[i].Title < suggestions[j].Title })
		if len(suggestions) > limit {
			suggestions = suggestions[:limit]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": suggestions})
}
