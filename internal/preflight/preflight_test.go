package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"songpack/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckDirectoryReadable_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryReadable("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckCreatable(t *testing.T) {
	dir := t.TempDir()

	if result := CheckCreatable("out", filepath.Join(dir, "a", "b", "c")); !result.Passed {
		t.Fatalf("expected nested missing path to be creatable, got: %s", result.Detail)
	}
	if result := CheckCreatable("out", dir); !result.Passed {
		t.Fatalf("expected existing dir to pass, got: %s", result.Detail)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckCreatable("out", filepath.Join(file, "child")); result.Passed {
		t.Fatal("expected failure when ancestor is a file")
	}
}

func TestRunAllAndErr(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.SourceDir = filepath.Join(dir, "missing")
	cfg.Paths.OutputDir = filepath.Join(dir, "build")
	cfg.Ledger.Enabled = true
	cfg.Ledger.Path = filepath.Join(dir, "state", "builds.db")

	results := RunAll(&cfg)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	err := Err(results)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if !strings.Contains(err.Error(), "Source directory") {
		t.Fatalf("error should name the failing check: %v", err)
	}

	if err := os.Mkdir(cfg.Paths.SourceDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := Err(RunAll(&cfg)); err != nil {
		t.Fatalf("expected all checks to pass, got %v", err)
	}
	if RunAll(nil) != nil {
		t.Fatal("expected nil results for nil config")
	}
}
