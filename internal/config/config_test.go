package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"songpack/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_STATE_HOME", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "state", "songpack")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if !filepath.IsAbs(cfg.Paths.SourceDir) || !filepath.IsAbs(cfg.Paths.OutputDir) {
		t.Fatalf("expected absolute paths, got source=%q output=%q", cfg.Paths.SourceDir, cfg.Paths.OutputDir)
	}
	if cfg.Ledger.Path != filepath.Join(wantState, "builds.db") {
		t.Fatalf("unexpected ledger path: %q", cfg.Ledger.Path)
	}
	if cfg.Build.Materialize != config.MaterializeCopy {
		t.Fatalf("expected copy materialization by default, got %q", cfg.Build.Materialize)
	}
	if cfg.LinkMode() {
		t.Fatal("expected link mode disabled by default")
	}
	if cfg.Build.HashAlgorithm != "sha512" {
		t.Fatalf("unexpected hash algorithm: %q", cfg.Build.HashAlgorithm)
	}
	if cfg.Runtime.APIEnable {
		t.Fatal("expected remote API disabled by default")
	}
	if cfg.Runtime.SongInfoURL != "/song.json" || cfg.Runtime.ResURL != "/res" {
		t.Fatalf("unexpected runtime defaults: %+v", cfg.Runtime)
	}
	if len(cfg.Rewrite.TextFields) == 0 || cfg.Rewrite.TextFields[0] != "title" {
		t.Fatalf("expected default text fields, got %v", cfg.Rewrite.TextFields)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	info, err := os.Stat(cfg.Paths.StateDir)
	if err != nil {
		t.Fatalf("expected state dir to exist: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected %q to be directory", cfg.Paths.StateDir)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "songpack.toml")

	type payload struct {
		Paths struct {
			SourceDir string `toml:"source_dir"`
			OutputDir string `toml:"output_dir"`
		} `toml:"paths"`
		Build struct {
			Materialize   string `toml:"materialize"`
			HashAlgorithm string `toml:"hash_algorithm"`
		} `toml:"build"`
		Rewrite struct {
			TextFields []string `toml:"text_fields"`
		} `toml:"rewrite"`
	}
	custom := payload{}
	custom.Paths.SourceDir = filepath.Join(tempDir, "songs")
	custom.Paths.OutputDir = filepath.Join(tempDir, "out")
	custom.Build.Materialize = " Symlink "
	custom.Build.HashAlgorithm = "BLAKE3"
	custom.Rewrite.TextFields = []string{"title", " title ", "", "notes"}

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.SourceDir != filepath.Join(tempDir, "songs") {
		t.Fatalf("unexpected source dir: %q", cfg.Paths.SourceDir)
	}
	if !cfg.LinkMode() {
		t.Fatalf("expected symlink alias to select link mode, got %q", cfg.Build.Materialize)
	}
	if cfg.Build.HashAlgorithm != "blake3-512" {
		t.Fatalf("expected blake3 alias to normalize, got %q", cfg.Build.HashAlgorithm)
	}
	if got := strings.Join(cfg.Rewrite.TextFields, ","); got != "title,notes" {
		t.Fatalf("unexpected text fields: got %q want %q", got, "title,notes")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "songpack.toml")
	if err := os.WriteFile(configPath, []byte("[build]\nmaterialise = \"copy\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to fail parsing")
	}
}

func TestEnvironmentOverridesDefaultPaths(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("SONGPACK_SOURCE", filepath.Join(tempDir, "env-songs"))
	t.Setenv("SONGPACK_OUTPUT", filepath.Join(tempDir, "env-out"))

	cfg, _, _, err := config.Load(filepath.Join(tempDir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.SourceDir != filepath.Join(tempDir, "env-songs") {
		t.Fatalf("unexpected source dir: %q", cfg.Paths.SourceDir)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempDir, "env-out") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := t.TempDir()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "materialize mode",
			mutate: func(c *config.Config) { c.Build.Materialize = "hardlink" },
			want:   "build.materialize",
		},
		{
			name:   "hash algorithm",
			mutate: func(c *config.Config) { c.Build.HashAlgorithm = "md5" },
			want:   "build.hash_algorithm",
		},
		{
			name:   "same source and output",
			mutate: func(c *config.Config) { c.Paths.OutputDir = c.Paths.SourceDir },
			want:   "must differ",
		},
		{
			name: "source inside output",
			mutate: func(c *config.Config) {
				c.Paths.OutputDir = base
				c.Paths.SourceDir = filepath.Join(base, "songs")
			},
			want: "must not live inside",
		},
		{
			name: "source in dot-dot named dir inside output",
			mutate: func(c *config.Config) {
				c.Paths.OutputDir = filepath.Join(base, "out")
				c.Paths.SourceDir = filepath.Join(base, "out", "..songs")
			},
			want: "must not live inside",
		},
		{
			name:   "exclude glob",
			mutate: func(c *config.Config) { c.Build.DescriptorExcludes = []string{"[unterminated"} },
			want:   "descriptor_excludes",
		},
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Logging.Level = "chatty" },
			want:   "logging.level",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.SourceDir = filepath.Join(base, "src")
			cfg.Paths.OutputDir = filepath.Join(base, "out")
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: got %q want substring %q", err, tc.want)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if len(cfg.Build.DescriptorExcludes) != 1 || cfg.Build.DescriptorExcludes[0] != "**/.git/**" {
		t.Fatalf("unexpected sample excludes: %v", cfg.Build.DescriptorExcludes)
	}
}
