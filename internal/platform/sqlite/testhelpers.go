package sqlite

import (
	"context"
	"database/sql"
	"testing"
)

// TestDB bundles a test database with helpers.
type TestDB struct {
	DB       *sql.DB
	TxRunner *TxRunner
}

// NewTestDBInMemory creates an in-memory SQLite database for tests.
// The database is closed automatically when the test finishes.
func NewTestDBInMemory(t *testing.T) *TestDB {
	t.Helper()

	db, err := NewInMemoryDB(context.Background())
	if err != nil {
		t.Fatalf("failed to create in-memory test DB: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return &TestDB{DB: db, TxRunner: NewTxRunner(db)}
}

// Exec runs a statement and fails the test on error.
func (tdb *TestDB) Exec(t *testing.T, query string, args ...any) sql.Result {
	t.Helper()

	result, err := tdb.DB.ExecContext(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("failed to execute query: %v", err)
	}
	return result
}

// QueryRow runs a query returning a single row.
func (tdb *TestDB) QueryRow(t *testing.T, query string, args ...any) *sql.Row {
	t.Helper()
	return tdb.DB.QueryRowContext(context.Background(), query, args...)
}

// MustSeedData executes the given statements, failing the test on any error.
func (tdb *TestDB) MustSeedData(t *testing.T, queries ...string) {
	t.Helper()

	for _, query := range queries {
		tdb.Exec(t, query)
	}
}

// CountRows returns the number of rows in the table.
func (tdb *TestDB) CountRows(t *testing.T, tableName string) int {
	t.Helper()

	var count int
	row := tdb.QueryRow(t, "SELECT COUNT(*) FROM "+tableName)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("failed to count rows in table %s: %v", tableName, err)
	}
	return count
}
