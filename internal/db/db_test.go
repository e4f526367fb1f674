package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "data", "monitor.db")

	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "memory",
			path: ":memory:",
			want: "file::memory:?_foreign_keys=on&_busy_timeout=5000",
		},
		{
			name: "file uri with params",
			path: "file:/tmp/x.db?cache=shared",
			want: "file:/tmp/x.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL",
		},
		{
			name: "plain path",
			path: nested,
			want: "file:" + nested + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.path)
			if err != nil {
				t.Fatalf("buildDSN: %v", err)
			}
			if got != tt.want {
				t.Fatalf("buildDSN()=%q want=%q", got, tt.want)
			}
		})
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "monitor.db")

	conn, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
	}()

	var mode string
	if err := conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode=%q want=wal", mode)
	}
}
