// Package httpapi wires every component behind spec.md §6's HTTP
// surface (H): search, suggest, read, snippet, random, list, catalog,
// resolve, collections, health, raw entry bytes, and the /manage/*
// administrative routes. Routing follows cmd/chrc/main.go's
// chi.NewRouter/r.Route/r.Group idiom; JSON helpers are the same
// shape as that file's env/writeJSON/writeError/queryInt.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zimi-go/zimi/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as the HTTP status and JSON body its
// apperr.Kind maps to, never leaking err's wrapped cause.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.Status(err), map[string]string{"error": apperr.ClientMessage(err)})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func queryBool(r *http.Request, key string, def bool) bool {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}
