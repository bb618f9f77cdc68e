package search

import (
	"context"
	"testing"
)

func TestSuggestReturnsPrefixMatches(t *testing.T) {
	e, _ := newTestEngine(t)
	caches := NewCaches()
	defer caches.Close()

	got, err := e.Suggest(context.Background(), caches, "wikipedia-en-mini", "wat", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Suggest(wat) = %d results, want 2", len(got))
	}
}

func TestSuggestCachesResult(t *testing.T) {
	e, _ := newTestEngine(t)
	caches := NewCaches()
	defer caches.Close()

	if _, err := e.Suggest(context.Background(), caches, "wikipedia-en-mini", "wat", 10); err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if caches.suggestions.Len() != 1 {
		t.Fatalf("suggestion cache len = %d, want 1", caches.suggestions.Len())
	}
}

func TestSuggestUnknownArchiveReturnsEmpty(t *testing.T) {
	e, _ := newTestEngine(t)
	caches := NewCaches()
	defer caches.Close()

	got, err := e.Suggest(context.Background(), caches, "missing-archive", "wat", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Suggest(missing) = %v, want empty", got)
	}
}
