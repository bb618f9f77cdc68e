package search

import (
	"context"
	"log/slog"
	"testing"

	"github.com/zimi-go/zimi/internal/registry"
	"github.com/zimi-go/zimi/internal/titleindex"
)

func fixtureTitles(t *testing.T, id string, rows []titleindex.SourceEntry) *titleindex.Index {
	t.Helper()
	idx, err := titleindex.Open(t.TempDir(), id)
	if err != nil {
		t.Fatalf("titleindex.Open: %v", err)
	}
	entries := func(yield func(titleindex.SourceEntry) bool) error {
		for _, r := range rows {
			if !yield(r) {
				break
			}
		}
		return nil
	}
	if err := idx.Build(context.Background(), entries, 1, 1); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func newTestEngine(t *testing.T) (*Engine, *registry.Registry) {
	t.Helper()
	reg := registry.New(t.TempDir(), t.TempDir(), slog.Default())

	wiki := registry.NewArchiveForTest("wikipedia-en-mini", 50000,
		fixtureTitles(t, "wikipedia-en-mini", []titleindex.SourceEntry{
			{Path: "A/Water", Title: "Water", Kind: "article"},
			{Path: "A/Watermelon", Title: "Watermelon", Kind: "article"},
		}))
	wikt := registry.NewArchiveForTest("wiktionary-en-mini", 10000,
		fixtureTitles(t, "wiktionary-en-mini", []titleindex.SourceEntry{
			{Path: "A/water", Title: "water", Kind: "article"},
		}))
	reg.PutForTest(wiki, wikt)
	return New(reg, slog.Default()), reg
}

func TestSearchFastReturnsTitlePhaseOnly(t *testing.T) {
	e, _ := newTestEngine(t)
	result, err := e.Search(context.Background(), nil, Query{Text: "water", Fast: true, Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Phase != "title" {
		t.Fatalf("Phase = %q, want title", result.Phase)
	}
	if len(result.Results) == 0 {
		t.Fatal("expected at least one hit")
	}
}

func TestSearchRanksExactTitleMatchFirst(t *testing.T) {
	e, _ := newTestEngine(t)
	result, err := e.Search(context.Background(), nil, Query{Text: "water", Fast: true, Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Results) == 0 {
		t.Fatal("expected hits")
	}
	first := result.Results[0]
	if first.Path != "A/Water" && first.Path != "A/water" {
		t.Fatalf("first hit = %+v, want an exact 'water' title", first)
	}
}

func TestSearchScopeRestrictsToOneArchive(t *testing.T) {
	e, _ := newTestEngine(t)
	result, err := e.Search(context.Background(), nil, Query{Text: "water", Fast: true, Limit: 5, Scope: []string{"wiktionary-en-mini"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range result.Results {
		if h.ArchiveID != "wiktionary-en-mini" {
			t.Fatalf("scoped search returned hit from %q", h.ArchiveID)
		}
	}
}

func TestCanonicalPathStripsFragmentAndNamespace(t *testing.T) {
	got := canonicalPath("A/Water#History")
	if got != "Water" {
		t.Fatalf("canonicalPath = %q, want %q", got, "Water")
	}
}

func TestScoreResultExactPhraseBeatsPartial(t *testing.T) {
	e := &Engine{ranks: NewSourceRanks()}
	exact := e.scoreResult("Water", []string{"water"}, 0, 100, "wikipedia-en-mini")
	partial := e.scoreResult("Watergate", []string{"water", "gate"}, 0, 100, "wikipedia-en-mini")
	if exact <= partial {
		t.Fatalf("exact score %v should exceed partial score %v", exact, partial)
	}
}

func TestScoreResultSourceRankBreaksTies(t *testing.T) {
	e := &Engine{ranks: NewSourceRanks()}
	wiki := e.scoreResult("Water", []string{"water"}, 0, 100, "wikipedia-en-mini")
	other := e.scoreResult("Water", []string{"water"}, 0, 100, "gutenberg-en-all")
	if wiki <= other {
		t.Fatalf("wikipedia score %v should exceed unranked score %v", wiki, other)
	}
}
