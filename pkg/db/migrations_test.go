package db

import (
	"os"
	"path/filepath"
	"testing"
)

const migrationsTestPrefix = "db:migrations_test"

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("%s - failed to write %s: %v", migrationsTestPrefix, name, err)
		}
	}
}

func TestLoadMigrationFiles(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		dirs  []string
		want  []string
	}{
		{
			name: "sorted by file name",
			files: map[string]string{
				"003_third.sql":  "THIRD",
				"001_first.sql":  "FIRST",
				"002_second.sql": "SECOND",
			},
			want: []string{"FIRST", "SECOND", "THIRD"},
		},
		{
			name: "non-sql files skipped",
			files: map[string]string{
				"001_journal.sql": "CREATE TABLE t;",
				"README.md":       "# migrations",
				"notes.txt":       "x",
			},
			want: []string{"CREATE TABLE t;"},
		},
		{
			name:  "directories skipped",
			files: map[string]string{"001_journal.sql": "A"},
			dirs:  []string{"000_nested.sql"},
			want:  []string{"A"},
		},
		{
			name: "empty dir",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tt.files)
			for _, d := range tt.dirs {
				if err := os.Mkdir(filepath.Join(dir, d), 0755); err != nil {
					t.Fatalf("%s - mkdir: %v", migrationsTestPrefix, err)
				}
			}

			got, err := LoadMigrationFiles(dir)
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("%s - got %d migrations, want %d", migrationsTestPrefix, len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("%s - migration %d = %q, want %q", migrationsTestPrefix, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLoadMigrationFiles_NonExistentDir(t *testing.T) {
	if _, err := LoadMigrationFiles(filepath.Join(t.TempDir(), "nonexistent")); err == nil {
		t.Errorf("%s - expected error for non-existent directory", migrationsTestPrefix)
	}
}

func TestLoadMigrationFiles_RepoMigrations(t *testing.T) {
	files, err := LoadMigrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - repo migrations unreadable: %v", migrationsTestPrefix, err)
	}
	if len(files) == 0 {
		t.Fatalf("%s - expected at least one repo migration", migrationsTestPrefix)
	}
}
