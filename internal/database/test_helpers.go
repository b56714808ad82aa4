package database

import (
	"path/filepath"
	"runtime"
	"testing"
)

// MigrationsDir points at the repository's migrations directory regardless
// of the test's working directory.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// NewTestDB opens a migrated sqlite database in a temporary directory.
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	db, err := NewDB(Config{SQLitePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations(MigrationsDir()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}
