package repo

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestOpenSQLiteMissingParentDir(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "nope", "test.db")); err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}

func TestPingAndClose(t *testing.T) {
	db := newTestDB(t)
	if err := Ping(db); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := Close(nil); err != nil {
		t.Fatalf("close nil: %v", err)
	}
}

func mustSession(t *testing.T, db *gorm.DB) string {
	t.Helper()
	s, err := CreateSession(context.Background(), db, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s.ID
}
