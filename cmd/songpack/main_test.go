package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"songpack/internal/config"
	"songpack/internal/testsupport"
)

const sha512ABC = "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a" +
	"2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	if err := os.MkdirAll(cfg.Paths.SourceDir, 0o755); err != nil {
		t.Fatalf("create source dir: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "songpack.toml")
	writeTestConfig(t, path, cfg)
	return &cliTestEnv{cfg: cfg, configPath: path}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, args, configPath, nil)
}

func runCLIWithInput(t *testing.T, args []string, configPath string, stdin io.Reader) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\noutput:\n%s", needle, haystack)
	}
}

func writeScenarioPackage(t *testing.T, env *cliTestEnv) {
	t.Helper()
	testsupport.WritePackage(t, env.cfg.Paths.SourceDir, "song1",
		"title: Song\naudio: a.mp3\ncover: img/c.png\n",
		map[string]string{"a.mp3": "audio-bytes", "img/c.png": "cover-bytes"})
}

func TestBuildCommandWritesOutputAndHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	writeScenarioPackage(t, env)

	out, _, err := runCLI(t, []string{"build"}, env.configPath)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	requireContains(t, out, "[OK] succeeded")
	requireContains(t, out, "Packages")
	requireContains(t, out, "Fingerprint")

	for _, name := range []string{"song.json", "info.json", "res"} {
		if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, name)); err != nil {
			t.Fatalf("expected %s in output: %v", name, err)
		}
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "succeeded")

	out, _, err = runCLI(t, []string{"history", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var entries []historyEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(entries) != 1 || entries[0].Packages != 1 || entries[0].Assets != 2 {
		t.Fatalf("unexpected history: %+v", entries)
	}
}

func TestBuildCommandJSONReport(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutLedger())
	writeScenarioPackage(t, env)
	output := filepath.Join(testsupport.BaseDir(env.cfg), "alt")

	out, _, err := runCLI(t, []string{"build", "--json", "--output", output, "--hash", "blake3"}, env.configPath)
	if err != nil {
		t.Fatalf("build --json: %v", err)
	}
	var report buildReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Status != "succeeded" || report.Assets != 2 || report.Written != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Algorithm != "blake3-512" {
		t.Fatalf("algorithm = %q, want blake3-512", report.Algorithm)
	}
	if report.OutputDir != output {
		t.Fatalf("output = %q, want %q", report.OutputDir, output)
	}
	if len(report.Packages) != 1 || report.Packages[0] != "song1" {
		t.Fatalf("unexpected packages: %v", report.Packages)
	}
}

func TestBuildCommandReportsMissingAsset(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutLedger())
	testsupport.WritePackage(t, env.cfg.Paths.SourceDir, "broken",
		"title: Broken\naudio: missing.mp3\n", nil)

	_, _, err := runCLI(t, []string{"build"}, env.configPath)
	if err == nil {
		t.Fatal("expected build to fail on a missing asset")
	}
	requireContains(t, err.Error(), "audio")
}

func TestHistoryDisabled(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutLedger())
	_, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err == nil {
		t.Fatal("expected history to fail with the ledger disabled")
	}
	requireContains(t, err.Error(), "disabled")
}

func TestListCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	writeScenarioPackage(t, env)
	testsupport.WritePackage(t, env.cfg.Paths.SourceDir, "other", "title: Other\n", nil)

	out, _, err := runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "song1")
	requireContains(t, out, "other/info.yml")

	out, _, err = runCLI(t, []string{"list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var views []packageView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 packages, got %+v", views)
	}
}

func TestListCommandEmptySource(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "No packages found")
}

func TestHashCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(testsupport.BaseDir(env.cfg), "abc.txt")
	testsupport.WriteText(t, path, "abc")

	out, _, err := runCLI(t, []string{"hash", path}, env.configPath)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	requireContains(t, out, sha512ABC+"  "+path)

	out, _, err = runCLIWithInput(t, []string{"hash", "-"}, env.configPath, strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("hash stdin: %v", err)
	}
	requireContains(t, out, sha512ABC+"  -")

	if _, _, err := runCLI(t, []string{"hash", "--hash", "md5", path}, env.configPath); err == nil {
		t.Fatal("expected unknown algorithm to fail")
	}
	if _, _, err := runCLI(t, []string{"hash", filepath.Join(testsupport.BaseDir(env.cfg), "nope")}, env.configPath); err == nil {
		t.Fatal("expected missing file to fail")
	}
}

func TestCleanCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := filepath.Join(testsupport.BaseDir(env.cfg), "stale")
	testsupport.WriteFile(t, filepath.Join(dir, "a.bin"), 4)
	testsupport.WriteText(t, filepath.Join(dir, "nested", "b.txt"), "bb")

	out, _, err := runCLI(t, []string{"clean", dir}, env.configPath)
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	requireContains(t, out, "2 entries")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read cleaned dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, found %d entries", len(entries))
	}

	if _, _, err := runCLI(t, []string{"clean", filepath.Join(dir, "missing")}, env.configPath); err == nil {
		t.Fatal("expected cleaning a missing directory to fail")
	}
}

func TestBuildAndListExpandHomeInPathFlags(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutLedger())
	writeScenarioPackage(t, env)
	base := testsupport.BaseDir(env.cfg)
	t.Setenv("HOME", base)

	out, _, err := runCLI(t, []string{"build", "--json", "--source", "~/songs", "--output", "~/tilde-out"}, env.configPath)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var report buildReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.SourceDir != env.cfg.Paths.SourceDir {
		t.Fatalf("source = %q, want %q", report.SourceDir, env.cfg.Paths.SourceDir)
	}
	if want := filepath.Join(base, "tilde-out"); report.OutputDir != want {
		t.Fatalf("output = %q, want %q", report.OutputDir, want)
	}

	out, _, err = runCLI(t, []string{"list", "--source", "~/songs"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "song1")
}
