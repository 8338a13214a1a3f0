package storage

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewCreatesPrivateFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file mode bits are not stable on Windows")
	}

	dbPath := filepath.Join(t.TempDir(), "nested", "extbridge.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_ = store.Close()

	info, err := os.Stat(dbPath)
	if err != nil {
		t.Fatalf("stat db: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Fatalf("db perms = %o, want 600", got)
	}
	dirInfo, err := os.Stat(filepath.Dir(dbPath))
	if err != nil {
		t.Fatalf("stat db dir: %v", err)
	}
	if got := dirInfo.Mode().Perm() & 0o077; got != 0 {
		t.Fatalf("db dir perms include group/other bits: %o", dirInfo.Mode().Perm())
	}
}

func TestMigrationsRecordedOnce(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := New(dbPath)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	_ = first.Close()

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer store.Close()

	version, err := store.GetSchemaVersion()
	if err != nil {
		t.Fatalf("GetSchemaVersion() error = %v", err)
	}
	if version != len(migrations) {
		t.Errorf("GetSchemaVersion() = %d, want %d", version, len(migrations))
	}

	history, err := store.GetMigrationHistory()
	if err != nil {
		t.Fatalf("GetMigrationHistory() error = %v", err)
	}
	if len(history) != len(migrations) {
		t.Fatalf("history has %d entries, want %d", len(history), len(migrations))
	}
	for i, h := range history {
		if h.Version != migrations[i].Version || h.Name != migrations[i].Name {
			t.Errorf("history[%d] = %d %q, want %d %q", i, h.Version, h.Name, migrations[i].Version, migrations[i].Name)
		}
		if h.AppliedAt == "" {
			t.Errorf("history[%d] applied_at is empty", i)
		}
	}

	cols, err := tableColumns(store.DB(), "cache_storage")
	if err != nil {
		t.Fatalf("tableColumns() error = %v", err)
	}
	for _, col := range []string{"key", "value", "updated_at"} {
		if !cols[col] {
			t.Errorf("cache_storage is missing column %q", col)
		}
	}
}

func TestSQLiteFilePathFromDSN(t *testing.T) {
	tests := []struct {
		dsn    string
		path   string
		onDisk bool
	}{
		{"", "", false},
		{":memory:", "", false},
		{"file::memory:?cache=shared", "", false},
		{"/tmp/x.db", "/tmp/x.db", true},
		{"file:/tmp/x.db?_pragma=foreign_keys(1)", "/tmp/x.db", true},
		{"postgres://host/db", "", false},
	}
	for _, tt := range tests {
		path, onDisk := sqliteFilePathFromDSN(tt.dsn)
		if path != tt.path || onDisk != tt.onDisk {
			t.Errorf("sqliteFilePathFromDSN(%q) = %q, %v; want %q, %v", tt.dsn, path, onDisk, tt.path, tt.onDisk)
		}
	}
}
