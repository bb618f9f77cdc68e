package search

import (
	"context"

	"github.com/zimi-go/zimi/internal/registry"
)

// Suggestion is one autocomplete hit, per spec.md §4.4.
type Suggestion struct {
	ArchiveID string `json:"archive_id"`
	Path      string `json:"path"`
	Title     string `json:"title"`
}

// Suggest runs autocomplete over a single archive, or, if archiveID
// is empty, over every registered archive (spec.md §4.4: "over a
// single archive (or all)"). Results are served from the suggestion
// cache (D) when present, otherwise fetched via B.prefix and cached.
func (e *Engine) Suggest(ctx context.Context, caches *Caches, archiveID, prefix string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	key := suggestionKey{archiveID: archiveID, prefix: prefix}
	if cached, ok := caches.suggestions.Get(key); ok {
		if len(cached) > limit {
			cached = cached[:limit]
		}
		return cached, nil
	}

	var archives []*registry.Archive
	if archiveID != "" {
		a, ok := e.reg.Get(archiveID)
		if !ok {
			return nil, nil
		}
		archives = append(archives, a)
	} else {
		archives = e.reg.List()
	}

	var out []Suggestion
	for _, a := range archives {
		if a.Titles == nil || a.Titles.Failed() {
			continue
		}
		lock := a.TitleLock()
		lock.RLock()
		rows, err := a.Titles.Prefix(ctx, prefix, limit)
		lock.RUnlock()
		if err != nil {
			continue
		}
		for _, r := range rows {
			out = append(out, Suggestion{ArchiveID: a.ID, Path: r.Path, Title: r.Title})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	caches.suggestions.Put(key, out)
	return out, nil
}
