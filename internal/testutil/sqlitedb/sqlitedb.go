// Package sqlitedb provides file-backed SQLite databases for integration
// tests. Each test gets its own database file, removed with the test's temp dir.
package sqlitedb

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

// TestDB represents a test database connection.
type TestDB struct {
	DB  *sql.DB
	DSN string
}

// NewTestDB opens an empty database for the test and closes it on cleanup.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), sanitizeName(t.Name())+".db")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	configureTestPool(db)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to ping test database: %v", err)
	}

	tdb := &TestDB{DB: db, DSN: dsn}
	t.Cleanup(func() { tdb.Teardown(t) })
	return tdb
}

// NewBlogDB opens a test database loaded with BlogDDL and BlogData.
func NewBlogDB(t *testing.T) *TestDB {
	t.Helper()
	tdb := NewTestDB(t)
	tdb.Exec(t, BlogDDL)
	tdb.Exec(t, BlogData)
	return tdb
}

// Teardown closes the database connection.
func (tdb *TestDB) Teardown(t *testing.T) {
	t.Helper()
	if tdb.DB != nil {
		if err := tdb.DB.Close(); err != nil {
			t.Logf("Warning: failed to close test database connection: %v", err)
		}
	}
}

// Exec runs semicolon-separated statements, failing the test on the first error.
func (tdb *TestDB) Exec(t *testing.T, script string) {
	t.Helper()
	for i, stmt := range splitSQL(script) {
		if _, err := tdb.DB.Exec(stmt); err != nil {
			t.Fatalf("Failed to execute SQL statement %d: %v\nStatement: %s", i+1, err, stmt)
		}
	}
}

func configureTestPool(db *sql.DB) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
}

// sanitizeName makes a test name safe for use as a file name.
func sanitizeName(name string) string {
	var result strings.Builder
	for _, ch := range name {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			result.WriteRune(ch)
		} else {
			result.WriteRune('_')
		}
	}
	sanitized := result.String()
	if len(sanitized) > 40 {
		sanitized = sanitized[:40]
	}
	return fmt.Sprintf("test_%s", sanitized)
}

// splitSQL splits SQL text into individual statements.
// It doesn't handle semicolons inside strings or comments.
func splitSQL(sql string) []string {
	statements := strings.Split(sql, ";")
	result := make([]string, 0, len(statements))
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}
