package titleindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// scanBudget bounds the LIKE-scan fallback used when FTS is absent,
// matching spec.md's default 50ms-per-archive cost budget.
const scanBudget = 50 * time.Millisecond

// lowerFold produces the case/diacritic-folded form stored in
// title_lower, matching the FTS5 unicode61 remove_diacritics
// tokenizer's normalization so prefix and token queries agree.
func lowerFold(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		if unicode.Is(unicode.Mn, r) {
			continue // combining diacritical mark, dropped
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

// Prefix returns entries whose title_lower starts with the folded
// form of q, up to limit results.
func (idx *Index) Prefix(ctx context.Context, q string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 10
	}
	idx.mu.Lock()
	db := idx.db
	idx.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("titleindex: index closed")
	}

	folded := escapeGlob(lowerFold(q))
	rows, err := db.QueryContext(ctx,
		`SELECT path, title FROM entries WHERE title_lower GLOB ? || '*' ORDER BY title_lower LIMIT ?`,
		folded, limit)
	if err != nil {
		return nil, fmt.Errorf("titleindex: prefix: %w", err)
	}
	return scanRows(rows)
}

// escapeGlob escapes SQLite GLOB metacharacters in a user query so a
// literal prefix match is performed rather than a pattern match.
func escapeGlob(s string) string {
	r := strings.NewReplacer("[", "[[]", "*", "[*]", "?", "[?]")
	return r.Replace(s)
}

// Tokens performs a multi-word search: FTS MATCH when available,
// otherwise a LIKE-scan fallback bounded by scanBudget, returning
// truncated=true if the budget was exceeded before completion.
func (idx *Index) Tokens(ctx context.Context, tokens []string, limit int) (rows []Row, truncated bool, err error) {
	if limit <= 0 {
		limit = 10
	}
	idx.mu.Lock()
	db, hasFTS := idx.db, idx.hasFTS
	idx.mu.Unlock()
	if db == nil {
		return nil, false, fmt.Errorf("titleindex: index closed")
	}
	if len(tokens) == 0 {
		return nil, false, nil
	}

	if hasFTS {
		matchQuery := ftsMatchQuery(tokens)
		sqlRows, err := db.QueryContext(ctx,
			`SELECT path, title FROM entries_fts WHERE entries_fts MATCH ? LIMIT ?`, matchQuery, limit)
		if err != nil {
			return nil, false, fmt.Errorf("titleindex: fts tokens: %w", err)
		}
		rows, err = scanRows(sqlRows)
		return rows, false, err
	}

	return idx.likeScan(ctx, tokens, limit)
}

// ftsMatchQuery conjoins tokens with AND, quoting each to avoid FTS5
// query-syntax injection from user input.
func ftsMatchQuery(tokens []string) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(parts, " AND ")
}

func (idx *Index) likeScan(ctx context.Context, tokens []string, limit int) ([]Row, bool, error) {
	idx.mu.Lock()
	db := idx.db
	idx.mu.Unlock()

	deadline := time.Now().Add(scanBudget)
	scanCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	clauses := make([]string, len(tokens))
	args := make([]any, 0, len(tokens)+1)
	for i, t := range tokens {
		clauses[i] = "title_lower LIKE ?"
		args = append(args, "%"+lowerFold(t)+"%")
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT path, title FROM entries WHERE %s LIMIT ?`, strings.Join(clauses, " AND "))
	sqlRows, err := db.QueryContext(scanCtx, query, args...)
	if err != nil {
		if scanCtx.Err() != nil {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("titleindex: like scan: %w", err)
	}
	rows, err := scanRows(sqlRows)
	if scanCtx.Err() != nil {
		return rows, true, nil
	}
	return rows, false, err
}

func scanRows(sqlRows *sql.Rows) ([]Row, error) {
	defer sqlRows.Close()
	var out []Row
	for sqlRows.Next() {
		var r Row
		if err := sqlRows.Scan(&r.Path, &r.Title); err != nil {
			return nil, fmt.Errorf("titleindex: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, sqlRows.Err()
}
