// Package titleindex maintains one SQLite database per archive: a
// prefix-searchable entries table plus an optional FTS5 full-text
// table, built once from an archive's directory listing and rebuilt
// wholesale (never row-updated) when the archive changes.
package titleindex

import "database/sql"

// Schema is the per-archive title index schema. No triggers keep
// entries_fts in sync incrementally, unlike a live-updated index,
// because a title index is rebuilt wholesale on every archive change,
// never patched row by row.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
    path        TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    title_lower TEXT NOT NULL,
    kind        TEXT NOT NULL DEFAULT 'article'
);
CREATE INDEX IF NOT EXISTS idx_entries_title_lower ON entries(title_lower);
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
    path UNINDEXED, title, tokenize='unicode61 remove_diacritics 2'
);
`

// ApplySchema creates the entries/meta tables. FTS is added separately
// by BuildFTS since it is conditional on entry count.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
