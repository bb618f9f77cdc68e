package titleindex

import (
	"context"
	"testing"
)

func fixtureEntries(rows []SourceEntry) func(func(SourceEntry) bool) error {
	return func(yield func(SourceEntry) bool) error {
		for _, r := range rows {
			if !yield(r) {
				break
			}
		}
		return nil
	}
}

func TestBuildAndPrefix(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir, "test-archive")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	entries := fixtureEntries([]SourceEntry{
		{Path: "A/Water", Title: "Water", Kind: "article"},
		{Path: "A/Watermelon", Title: "Watermelon", Kind: "article"},
		{Path: "A/Fire", Title: "Fire", Kind: "article"},
	})

	if err := idx.Build(context.Background(), entries, 1024, 1); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !idx.HasFTS() {
		t.Fatal("HasFTS should be true for small archive")
	}
	if !idx.IsCurrent(1024, 1) {
		t.Fatal("IsCurrent should be true right after Build")
	}
	if idx.IsCurrent(2048, 1) {
		t.Fatal("IsCurrent should be false when size differs")
	}

	rows, err := idx.Prefix(context.Background(), "wat", 10)
	if err != nil {
		t.Fatalf("Prefix: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Prefix(wat) = %d rows, want 2", len(rows))
	}

	rows, err = idx.Prefix(context.Background(), "fir", 10)
	if err != nil {
		t.Fatalf("Prefix: %v", err)
	}
	if len(rows) != 1 || rows[0].Title != "Fire" {
		t.Fatalf("Prefix(fir) = %+v, want [Fire]", rows)
	}
}

func TestTokensWithFTS(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir, "test-archive")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	entries := fixtureEntries([]SourceEntry{
		{Path: "A/Deep_Water", Title: "Deep Water", Kind: "article"},
		{Path: "A/Fire_Water", Title: "Fire Water", Kind: "article"},
	})
	if err := idx.Build(context.Background(), entries, 1, 1); err != nil {
		t.Fatalf("Build: %v", err)
	}

	rows, truncated, err := idx.Tokens(context.Background(), []string{"deep", "water"}, 10)
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if truncated {
		t.Fatal("Tokens should not be truncated for a tiny archive")
	}
	if len(rows) != 1 || rows[0].Title != "Deep Water" {
		t.Fatalf("Tokens(deep water) = %+v, want [Deep Water]", rows)
	}
}

func TestLowerFoldStripsDiacritics(t *testing.T) {
	if got := lowerFold("Café"); got != "cafe" {
		t.Errorf("lowerFold(Café) = %q, want cafe", got)
	}
}

func TestBuildFTSOnDemand(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir, "test-archive")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	if err := idx.BuildFTS(context.Background()); err != nil {
		t.Fatalf("BuildFTS: %v", err)
	}
	if !idx.HasFTS() {
		t.Fatal("HasFTS should be true after BuildFTS")
	}
}

func TestMarkFailedQuarantinesAfterThree(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir, "test-archive")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	for i := 0; i < 2; i++ {
		idx.MarkFailed()
		if idx.Failed() {
			t.Fatalf("Failed() true after only %d attempts", i+1)
		}
	}
	idx.MarkFailed()
	if !idx.Failed() {
		t.Fatal("Failed() should be true after three attempts")
	}
}
