package repo

import (
	"path/filepath"
	"testing"
)

func TestOpenSQLite_TraceQueriesInstallsPlugin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.db")

	db, err := OpenSQLite(path, true)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, ok := db.Config.Plugins["otelgorm"]; !ok {
		t.Fatalf("expected the otelgorm plugin to be registered, got %v", db.Config.Plugins)
	}
}

func TestOpenSQLite_TracingOffByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.db")

	db, err := OpenSQLite(path, false)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, ok := db.Config.Plugins["otelgorm"]; ok {
		t.Fatalf("otelgorm plugin registered without tracing enabled")
	}
}

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "nope", "payments.db"), false); err == nil {
		t.Fatalf("expected an error for a missing parent directory")
	}
}
