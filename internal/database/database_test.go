package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"tags.db", "tags.db?_foreign_keys=on&_busy_timeout=5000"},
		{"file:tags.db?cache=shared", "file:tags.db?cache=shared&_foreign_keys=on&_busy_timeout=5000"},
	}
	for _, tt := range tests {
		if got := dsn(tt.path); got != tt.want {
			t.Errorf("dsn(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestOpenMigrates(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"memory", MemoryPath},
		{"file", filepath.Join(t.TempDir(), "tags.db")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Open(tt.path, zerolog.Nop())
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer db.Close()

			for _, table := range []string{"matches", "sets", "rallies", "shots"} {
				var name string
				err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
				if err != nil {
					t.Errorf("table %s missing: %v", table, err)
				}
			}

			var fk int
			if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil || fk != 1 {
				t.Errorf("foreign keys = %d (%v), want on", fk, err)
			}
		})
	}
}
