package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/OctaHive/octabot/internal/errs"
	"github.com/OctaHive/octabot/internal/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New("error")
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	return log
}

func TestNewDefaultsNilPerPluginConfig(t *testing.T) {
	t.Parallel()
	r := New(nil, testLogger(t), "/does/not/matter", nil)
	if r.perPluginConfig == nil {
		t.Fatal("expected New to default a nil perPluginConfig to an empty map")
	}
}

func TestResolveUnknownPluginReturnsErrUnknownPlugin(t *testing.T) {
	t.Parallel()
	r := New(nil, testLogger(t), "/does/not/matter", nil)

	_, err := r.Resolve(context.Background(), "weather-sync")
	if !errors.Is(err, errs.ErrUnknownPlugin) {
		t.Fatalf("expected errs.ErrUnknownPlugin, got %v", err)
	}
}

func TestNamesEmptyForFreshRegistry(t *testing.T) {
	t.Parallel()
	r := New(nil, testLogger(t), "/does/not/matter", nil)
	if names := r.Names(); len(names) != 0 {
		t.Fatalf("expected no plugin names, got %v", names)
	}
}

func TestScanOnMissingDirectoryIsNotFatal(t *testing.T) {
	t.Parallel()
	r := New(nil, testLogger(t), filepath.Join(t.TempDir(), "nonexistent-plugins"), nil)

	if err := r.Scan(context.Background()); err != nil {
		t.Fatalf("Scan over a missing directory should not error, got: %v", err)
	}
	if names := r.Names(); len(names) != 0 {
		t.Fatalf("expected no plugins loaded, got %v", names)
	}
}

func TestScanOnEmptyDirectoryLoadsNothing(t *testing.T) {
	t.Parallel()
	r := New(nil, testLogger(t), t.TempDir(), nil)

	if err := r.Scan(context.Background()); err != nil {
		t.Fatalf("Scan over an empty directory should not error, got: %v", err)
	}
	if names := r.Names(); len(names) != 0 {
		t.Fatalf("expected no plugins loaded, got %v", names)
	}
}
