package search

import "regexp"

// sourceRankRule is one row of the static source-rank table: the
// first pattern that matches an archive's id wins. Grounded on
// spec.md §9's own "Strategy" note ("candidate table is a plain
// sorted slice scanned linearly") and on the dead-simple id-naming
// the registry already derives (internal/registry.categorize).
//
// Higher rank wins. Defaults per spec.md §4.3 point 3: Wikipedia >
// Wiktionary/Wikiquote > Stack Exchange > dev docs > other.
type sourceRankRule struct {
	pattern *regexp.Regexp
	rank    int
}

var defaultSourceRanks = []sourceRankRule{
	{regexp.MustCompile(`(?i)wikipedia`), 100},
	{regexp.MustCompile(`(?i)wiktionary|wikiquote`), 80},
	{regexp.MustCompile(`(?i)stackexchange|stackoverflow`), 60},
	{regexp.MustCompile(`(?i)devdocs`), 40},
}

// SourceRanks holds a mutable, user-editable copy of the source-rank
// table (spec.md: "a static table (editable by user)"). Queries are
// linear scans over an ordered slice, first match wins, unmatched ids
// fall back to rank 0.
type SourceRanks struct {
	rules []sourceRankRule
}

// NewSourceRanks returns the built-in default table.
func NewSourceRanks() *SourceRanks {
	rules := make([]sourceRankRule, len(defaultSourceRanks))
	copy(rules, defaultSourceRanks)
	return &SourceRanks{rules: rules}
}

// RankOf returns archiveID's authority rank, or 0 if no rule matches.
func (sr *SourceRanks) RankOf(archiveID string) int {
	for _, r := range sr.rules {
		if r.pattern.MatchString(archiveID) {
			return r.rank
		}
	}
	return 0
}

// Set installs a user-supplied override, matched before the built-in
// defaults (most specific first).
func (sr *SourceRanks) Set(namePattern string, rank int) error {
	re, err := regexp.Compile(namePattern)
	if err != nil {
		return err
	}
	sr.rules = append([]sourceRankRule{{pattern: re, rank: rank}}, sr.rules...)
	return nil
}
