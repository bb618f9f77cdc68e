package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/zimi-go/zimi/internal/apperr"
)

func (a *api) handleResolveGet(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing url parameter"))
		return
	}
	res := a.Resolver.Resolve(u)
	if !res.Found {
		writeJSON(w, http.StatusOK, map[string]any{"archive": nil})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type resolveBatchRequest struct {
	URLs []string `json:"urls"`
}

func (a *api) handleResolvePost(w http.ResponseWriter, r *http.Request) {
	var body resolveBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Wrap(apperr.BadRequest, "invalid JSON body", err))
		return
	}
	if len(body.URLs) == 0 {
		writeError(w, apperr.New(apperr.BadRequest, "missing urls field"))
		return
	}

	resolved := a.Resolver.ResolveBatch(r.Context(), body.URLs)
	results := make(map[string]any, len(resolved))
	for u, res := range resolved {
		if res.Found {
			results[u] = res
		} else {
			results[u] = nil
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
