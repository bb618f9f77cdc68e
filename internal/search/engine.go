// Package search implements the two-phase cross-archive search
// engine (component C): a parallel title-index phase layered under a
// hard time budget, followed by a serialized full-text phase under
// the registry's global archive lock, merged and ranked into a
// single ordered result list.
//
// Grounded on a concurrent-fan-out-then-serialize idiom
// (veille.Service.processJob: errgroup fan-out, then a
// globally-locked pass) and on original_source/zimi/server.py's
// search_all/_score_result, which this package ports as a typed Go
// scoring function.
package search

import (
	"context"
	"log/slog"
	"math"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zimi-go/zimi/internal/registry"
)

// phase1Budget is the hard wall-clock budget for phase 1, per
// spec.md §4.3 ("Phase 1 must complete... within a hard 800 ms
// budget").
const phase1Budget = 800 * time.Millisecond

// defaultTotalBudget is the default overall deadline (phase 1 +
// phase 2) when the caller doesn't set TimeoutMS, per spec.md §4.3
// ("default total 12 s").
const defaultTotalBudget = 12 * time.Second

// Query is the search() entry point's input, per spec.md §4.3.
type Query struct {
	Text      string
	Limit     int      // default 10
	Scope     []string // archive ids; empty means all archives
	Fast      bool     // skip phase 2 entirely
	TimeoutMS int      // overall budget; 0 means defaultTotalBudget
}

// Hit is one search result record, per spec.md §3's "Search result
// record": (archive_id, path, title, kind, score, snippet?,
// thumbnail_url?, source_rank). Snippet/ThumbnailURL are left empty
// here; the HTTP layer fills them in via internal/reader for the
// final truncated set only, per spec.md §4.3 ("never for discarded
// candidates").
type Hit struct {
	ArchiveID    string  `json:"archive_id"`
	Path         string  `json:"path"`
	Title        string  `json:"title"`
	Kind         string  `json:"kind"`
	Score        float64 `json:"score"`
	Snippet      string  `json:"snippet,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	SourceRank   int     `json:"source_rank"`
}

// Result is search()'s return value.
type Result struct {
	Results []Hit  `json:"results"`
	Phase   string `json:"phase"` // "title" if phase 2 was skipped/didn't run, else "full"
	Partial bool   `json:"partial"`
}

// Engine runs cross-archive search over a registry.
type Engine struct {
	reg   *registry.Registry
	ranks *SourceRanks
	log   *slog.Logger
}

// New creates an Engine over reg, using the default source-rank
// table.
func New(reg *registry.Registry, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{reg: reg, ranks: NewSourceRanks(), log: log}
}

// SourceRanks exposes the mutable rank table for admin edits.
func (e *Engine) SourceRanks() *SourceRanks { return e.ranks }

// rawHit is an intermediate, pre-score hit carrying the per-archive
// rank position _score_result needs.
type rawHit struct {
	archiveID  string
	path       string
	title      string
	kind       string
	rankInArc  int // position within its archive's own result list
	entryCount int
}

// Search runs the full two-phase protocol described in spec.md
// §4.3, consulting and populating the result cache (E) when caches
// is non-nil.
func (e *Engine) Search(ctx context.Context, caches *Caches, q Query) (*Result, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	var rkey resultKey
	if caches != nil {
		rkey = newResultKey(q)
		if cached, ok := caches.results.Get(rkey); ok {
			return cached, nil
		}
	}

	total := defaultTotalBudget
	if q.TimeoutMS > 0 {
		total = time.Duration(q.TimeoutMS) * time.Millisecond
	}
	deadline := time.Now().Add(total)

	archives := e.scopedArchives(q.Scope)

	phase1Ctx, cancel1 := context.WithTimeout(ctx, phase1Budget)
	defer cancel1()
	raw, partial := e.phase1(phase1Ctx, archives, q.Text, q.Limit)

	phase := "title"
	if !q.Fast {
		remaining := time.Until(deadline)
		if remaining > 0 {
			phase2Ctx, cancel2 := context.WithDeadline(ctx, time.Now().Add(remaining))
			more, p2partial := e.phase2(phase2Ctx, archives, q.Text, q.Limit)
			cancel2()
			raw = append(raw, more...)
			partial = partial || p2partial
			phase = "full"
		} else {
			partial = true
		}
	}

	hits := e.scoreAndMerge(raw, q.Text)
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	result := &Result{Results: hits, Phase: phase, Partial: partial}

	if caches != nil && !partial {
		caches.results.Put(rkey, result)
	}
	return result, nil
}

func (e *Engine) scopedArchives(scope []string) []*registry.Archive {
	if len(scope) == 0 {
		return e.reg.List()
	}
	out := make([]*registry.Archive, 0, len(scope))
	for _, id := range scope {
		if a, ok := e.reg.Get(id); ok {
			out = append(out, a)
		}
	}
	return out
}

// phase1 fans out B.prefix (and B.tokens for multi-word queries) to
// every scoped archive in parallel under each archive's title read
// lock, per spec.md §4.3 steps 1-3.
func (e *Engine) phase1(ctx context.Context, archives []*registry.Archive, query string, limit int) ([]rawHit, bool) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, false
	}

	var (
		mu      sync.Mutex
		out     []rawHit
		partial bool
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range archives {
		a := a
		g.Go(func() error {
			if a.Titles == nil || a.Titles.Failed() {
				return nil
			}
			lock := a.TitleLock()
			lock.RLock()
			defer lock.RUnlock()

			seen := map[string]bool{}
			var hits []rawHit

			rows, err := a.Titles.Prefix(gctx, tokens[0], limit)
			if err == nil {
				for i, r := range rows {
					if seen[r.Path] {
						continue
					}
					seen[r.Path] = true
					hits = append(hits, rawHit{archiveID: a.ID, path: r.Path, title: r.Title, kind: "article", rankInArc: i, entryCount: a.EntryCount})
				}
			}

			if len(tokens) > 1 {
				rows, trunc, err := a.Titles.Tokens(gctx, tokens, limit)
				if err == nil {
					base := len(hits)
					for i, r := range rows {
						if seen[r.Path] {
							continue
						}
						seen[r.Path] = true
						hits = append(hits, rawHit{archiveID: a.ID, path: r.Path, title: r.Title, kind: "article", rankInArc: base + i, entryCount: a.EntryCount})
					}
					if trunc {
						mu.Lock()
						partial = true
						mu.Unlock()
					}
				}
			}

			mu.Lock()
			out = append(out, hits...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil || ctx.Err() != nil {
		partial = true
	}
	return out, partial
}

// phase2 runs the deep full-text phase, serialized under the
// registry's global archive lock only — never per-archive title
// locks, unlike phase1's concurrent fan-out — iterating scoped
// archives ordered by (source_rank desc, archive_id asc), per spec.md
// §4.3. The per-archive title lock is redundant here: GlobalLock
// already limits this loop to one archive at a time, and
// titleindex.Index guards its own db handle against a concurrent
// rebuild swap internally (idx.mu), so there is nothing left for
// TitleLock to add.
//
// The example corpus carries no Xapian/native-full-text binding (no
// real libzim is available, per internal/zimfmt's doc comment), so
// "the archive's native full-text query" is implemented here as a
// deeper titleindex.Tokens query over the full token set (phase 1
// only probes the first token's prefix) run one archive at a time
// under the global lock, matching the serialization contract spec.md
// describes even though the underlying index is the same SQLite FTS5
// store phase 1 uses rather than a separate native engine.
func (e *Engine) phase2(ctx context.Context, archives []*registry.Archive, query string, limit int) ([]rawHit, bool) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, false
	}

	ordered := make([]*registry.Archive, len(archives))
	copy(ordered, archives)
	sort.Slice(ordered, func(i, j int) bool {
		ri, rj := e.ranks.RankOf(ordered[i].ID), e.ranks.RankOf(ordered[j].ID)
		if ri != rj {
			return ri > rj
		}
		return ordered[i].ID < ordered[j].ID
	})

	var out []rawHit
	partial := false
	for _, a := range ordered {
		if ctx.Err() != nil {
			partial = true
			break
		}
		if a.Titles == nil || a.Titles.Failed() {
			continue
		}

		e.reg.GlobalLock.Lock()
		rows, trunc, err := a.Titles.Tokens(ctx, tokens, limit)
		e.reg.GlobalLock.Unlock()

		if err != nil {
			continue
		}
		if trunc {
			partial = true
		}
		for i, r := range rows {
			out = append(out, rawHit{archiveID: a.ID, path: r.Path, title: r.Title, kind: "article", rankInArc: i, entryCount: a.EntryCount})
		}
	}
	return out, partial
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	return fields
}

// canonicalPath normalizes a path for dedup: strips any fragment,
// URL-decodes, and collapses a leading "A/" namespace prefix, per
// spec.md §4.3's "canonicalize(path)" rule.
func canonicalPath(p string) string {
	if i := strings.IndexByte(p, '#'); i >= 0 {
		p = p[:i]
	}
	if decoded, err := url.QueryUnescape(p); err == nil {
		p = decoded
	}
	p = strings.TrimPrefix(p, "A/")
	return p
}

// scoreAndMerge dedups raw hits by (archive_id, canonical(path)),
// scores each via scoreResult, then orders by (score desc, shorter
// title, alphabetical title) per spec.md §4.3 steps 1 and 4.
func (e *Engine) scoreAndMerge(raw []rawHit, query string) []Hit {
	queryWords := tokenize(query)

	type key struct{ archiveID, path string }
	best := map[key]rawHit{}
	for _, h := range raw {
		k := key{h.archiveID, canonicalPath(h.path)}
		cur, ok := best[k]
		if !ok || h.rankInArc < cur.rankInArc {
			best[k] = h
		}
	}

	hits := make([]Hit, 0, len(best))
	for _, h := range best {
		score := e.scoreResult(h.title, queryWords, h.rankInArc, h.entryCount, h.archiveID)
		hits = append(hits, Hit{
			ArchiveID:  h.archiveID,
			Path:       h.path,
			Title:      h.title,
			Kind:       h.kind,
			Score:      score,
			SourceRank: e.ranks.RankOf(h.archiveID),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if len(hits[i].Title) != len(hits[j].Title) {
			return len(hits[i].Title) < len(hits[j].Title)
		}
		return hits[i].Title < hits[j].Title
	})
	return hits
}

// scoreResult is a typed port of original_source/zimi/server.py's
// _score_result, plus a Go-native sourceRankBonus term (spec.md
// §4.3 point 3's static rank table, which the original only
// approximates via entry_count). The bonus is scaled down (rank/20)
// to stay within the same rough magnitude as the other three terms.
func (e *Engine) scoreResult(title string, queryWords []string, rankInArc, entryCount int, archiveID string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	titleLower := strings.ToLower(title)

	hits := 0
	for _, w := range queryWords {
		if strings.Contains(titleLower, w) {
			hits++
		}
	}

	var titleScore float64
	switch {
	case hits == len(queryWords):
		titleScore = 80
	case hits > 0:
		titleScore = 50 * float64(hits) / float64(len(queryWords))
	default:
		titleScore = 0
	}
	if strings.Contains(titleLower, strings.Join(queryWords, " ")) {
		titleScore = 100
	}

	rankScore := 20 / float64(rankInArc+1)
	if titleScore == 0 && rankScore > 5 {
		rankScore = 5
	}

	authorityScore := math.Log10(math.Max(float64(entryCount), 1)) / 2
	if authorityScore > 5 {
		authorityScore = 5
	}
	authorityScore += float64(e.ranks.RankOf(archiveID)) / 20

	return titleScore + rankScore + authorityScore
}
