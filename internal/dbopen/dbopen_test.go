package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/zimi-go/zimi/internal/dbopen"
)

func TestOpen(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatal(err)
	}
	if journalMode != "wal" && journalMode != "memory" {
		t.Fatalf("journal_mode = %q, want wal or memory", journalMode)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}

	var sync int
	if err := db.QueryRow("PRAGMA synchronous").Scan(&sync); err != nil {
		t.Fatal(err)
	}
	if sync != 1 {
		t.Fatalf("synchronous = %d, want 1 (NORMAL)", sync)
	}
}

func TestWithCacheSize(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithCacheSize(-64000))

	var cs int
	if err := db.QueryRow("PRAGMA cache_size").Scan(&cs); err != nil {
		t.Fatal(err)
	}
	if cs != -64000 {
		t.Fatalf("cache_size = %d, want -64000", cs)
	}
}

func TestWithSchema(t *testing.T) {
	schema := `CREATE TABLE test_table (id TEXT PRIMARY KEY, name TEXT);`
	db := dbopen.OpenMemory(t, dbopen.WithSchema(schema))

	if _, err := db.Exec(`INSERT INTO test_table (id, name) VALUES ('1', 'hello')`); err != nil {
		t.Fatalf("insert into schema-created table: %v", err)
	}
}

func TestWithMkdirAll(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "deep", "test.db")

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatalf("open with mkdirall: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("some other error"), false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("database is locked"), true},
	}
	for _, tt := range tests {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRunTxRollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE tx_rb_test (id TEXT PRIMARY KEY)`))
	ctx := context.Background()

	sentinel := errors.New("rollback me")
	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO tx_rb_test (id) VALUES ('1')`)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunTx error = %v, want sentinel", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM tx_rb_test`).Scan(&count)
	if count != 0 {
		t.Fatalf("count = %d, want 0 after rollback", count)
	}
}
