package search

import "testing"

func TestRankOfDefaults(t *testing.T) {
	sr := NewSourceRanks()
	tests := []struct {
		id   string
		want int
	}{
		{"wikipedia-en-mini", 100},
		{"wiktionary-en-mini", 80},
		{"wikiquote-en-mini", 80},
		{"stackoverflow-com-en", 60},
		{"devdocs-en-go", 40},
		{"gutenberg-en-all", 0},
	}
	for _, tt := range tests {
		if got := sr.RankOf(tt.id); got != tt.want {
			t.Errorf("RankOf(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestSetOverridesBeforeDefaults(t *testing.T) {
	sr := NewSourceRanks()
	if err := sr.Set("gutenberg", 90); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := sr.RankOf("gutenberg-en-all"); got != 90 {
		t.Fatalf("RankOf after override = %d, want 90", got)
	}
}
