package migrate

import (
	"os"
	"testing"
)

func TestUpIsIdempotent(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping migration integration test")
	}

	if err := Up(dsn); err != nil {
		t.Fatalf("first Up: %v", err)
	}
	if err := Up(dsn); err != nil {
		t.Fatalf("second Up should be a no-op, got: %v", err)
	}
}

func TestEmbeddedMigrationsAreNotEmpty(t *testing.T) {
	t.Parallel()
	entries, err := sqlFiles.ReadDir("sql")
	if err != nil {
		t.Fatalf("read embedded sql dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one embedded migration file")
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		buf, err := sqlFiles.ReadFile("sql/" + e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		if len(buf) == 0 {
			t.Fatalf("migration file %s is empty", e.Name())
		}
	}
}
