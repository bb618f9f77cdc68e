package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/zimi-go/zimi/internal/apperr"
)

func (a *api) handleCollectionsList(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		members, ok := a.Store.ListCollections()[name]
		if !ok {
			writeError(w, apperr.New(apperr.NotFound, "collection '"+name+"' not found"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "zims": members})
		return
	}
	writeJSON(w, http.StatusOK, a.Store.ListCollections())
}

type saveCollectionRequest struct {
	Name string   `json:"name"`
	Zims []string `json:"zims"`
}

func (a *api) handleCollectionsSave(w http.ResponseWriter, r *http.Request) {
	var body saveCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Wrap(apperr.BadRequest, "invalid JSON body", err))
		return
	}
	if body.Name == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing name field"))
		return
	}
	if err := a.Store.SaveCollection(body.Name, body.Zims); err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "save collection failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": body.Name, "zims": body.Zims})
}

func (a *api) handleCollectionsDelete(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, apperr.New(apperr.BadRequest, "missing name parameter"))
		return
	}
	if err := a.Store.DeleteCollection(name); err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "delete collection failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
