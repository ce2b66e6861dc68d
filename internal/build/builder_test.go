package build_test

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"songpack/internal/archive"
	"songpack/internal/build"
	"songpack/internal/contenthash"
	"songpack/internal/document"
	"songpack/internal/ledger"
	"songpack/internal/logging"
	"songpack/internal/materialize"
	"songpack/internal/rewrite"
	"songpack/internal/testsupport"
)

func sum(content string) string {
	digest := sha512.Sum512([]byte(content))
	return hex.EncodeToString(digest[:])
}

type paths struct {
	source string
	output string
}

func newPaths(t *testing.T) paths {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return paths{source: cfg.Paths.SourceDir, output: cfg.Paths.OutputDir}
}

func run(t *testing.T, p paths, opts ...build.Option) *build.Result {
	t.Helper()
	opts = append([]build.Option{build.WithLogger(logging.NewNop())}, opts...)
	result, err := build.New(p.source, p.output, opts...).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result
}

func readManifest(t *testing.T, output string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(output, build.ManifestName))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest []map[string]any
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("decode manifest: %v\n%s", err, data)
	}
	return manifest
}

func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			files[rel] = "-> " + target
		case d.Type().IsRegular():
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			files[rel] = string(data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot %s: %v", root, err)
	}
	return files
}

func TestBuildSongScenario(t *testing.T) {
	p := newPaths(t)
	testsupport.WritePackage(t, p.source, "song1",
		"title: Song\naudio: a.mp3\ncover: img/c.png\n",
		map[string]string{"a.mp3": "audio-bytes", "img/c.png": "cover-bytes"})

	result := run(t, p)

	h1, h2 := sum("audio-bytes"), sum("cover-bytes")
	data, err := os.ReadFile(result.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	want := "[\n  {\n    \"title\": \"Song\",\n    \"audio\": \"" + h1 + "\",\n    \"cover\": \"" + h2 + "\"\n  }\n]\n"
	if string(data) != want {
		t.Fatalf("unexpected song.json:\n got %s\nwant %s", data, want)
	}

	files := snapshot(t, p.output)
	if files[filepath.Join("res", h1)] != "audio-bytes" || files[filepath.Join("res", h2)] != "cover-bytes" {
		t.Fatalf("res/ not content addressed: %s", spew.Sdump(files))
	}

	var info map[string]any
	if err := json.Unmarshal([]byte(files[build.InfoName]), &info); err != nil {
		t.Fatalf("decode info.json: %v", err)
	}
	if info["apiEnable"] != false || info["apiUrl"] != "" || info["songInfoUrl"] != "/song.json" || info["resUrl"] != "/res" {
		t.Fatalf("unexpected info.json: %v", info)
	}

	if len(result.Packages) != 1 || result.Packages[0].Name != "song1" {
		t.Fatalf("unexpected packages: %+v", result.Packages)
	}
	if result.Materialize.Written != 2 || result.ID == "" || result.Fingerprint == "" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	p := newPaths(t)
	testsupport.WritePackage(t, p.source, "a", "title: A\naudio: a.ogg\n", map[string]string{"a.ogg": "a"})
	testsupport.WritePackage(t, p.source, "b", "title: B\naudio: b.ogg\ncharts: [{level: 1, file: c1.txt}]\n",
		map[string]string{"b.ogg": "b", "c1.txt": "chart"})

	run(t, p)
	first := snapshot(t, p.output)
	run(t, p)
	second := snapshot(t, p.output)

	if len(first) != len(second) {
		t.Fatalf("file count changed: %d vs %d", len(first), len(second))
	}
	for path, content := range first {
		if second[path] != content {
			t.Fatalf("%s differs between builds", path)
		}
	}
}

func TestBuildIsDeterministicAcrossOutputs(t *testing.T) {
	p := newPaths(t)
	testsupport.WritePackage(t, p.source, "zeta", "title: Z\naudio: z.ogg\n", map[string]string{"z.ogg": "z"})
	testsupport.WritePackage(t, p.source, "alpha", "title: A\naudio: a.ogg\n", map[string]string{"a.ogg": "a"})

	run(t, p)
	other := paths{source: p.source, output: filepath.Join(t.TempDir(), "other")}
	run(t, other)

	a, _ := os.ReadFile(filepath.Join(p.output, build.ManifestName))
	b, _ := os.ReadFile(filepath.Join(other.output, build.ManifestName))
	if !bytes.Equal(a, b) {
		t.Fatal("song.json differs between outputs")
	}
	manifest := readManifest(t, p.output)
	if manifest[0]["title"] != "A" || manifest[1]["title"] != "Z" {
		t.Fatalf("manifest not in descriptor path order: %v", manifest)
	}
}

func TestBuildDedupsSharedAssets(t *testing.T) {
	p := newPaths(t)
	testsupport.WritePackage(t, p.source, "one", "title: One\ncover: cover.png\n", map[string]string{"cover.png": "shared"})
	testsupport.WritePackage(t, p.source, "two", "title: Two\ncover: art/other.png\n", map[string]string{"art/other.png": "shared"})

	result := run(t, p)
	if len(result.References) != 1 || result.Aliases != 1 {
		t.Fatalf("got %d references and %d aliases, want 1 and 1", len(result.References), result.Aliases)
	}
	if !strings.HasSuffix(result.References[0].AbsolutePath, filepath.Join("one", "cover.png")) {
		t.Fatalf("first package should own the asset, got %s", result.References[0].AbsolutePath)
	}
	entries, err := os.ReadDir(filepath.Join(p.output, build.ResDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != sum("shared") {
		t.Fatalf("unexpected res/ entries: %v", entries)
	}
	manifest := readManifest(t, p.output)
	if manifest[0]["cover"] != manifest[1]["cover"] {
		t.Fatal("identical content must map to the same address")
	}
}

func TestBuildRejectsMalformedPackages(t *testing.T) {
	tests := []struct {
		name        string
		descriptor  string
		unsupported bool
	}{
		{"sequence root", "- a.ogg\n- b.ogg\n", false},
		{"scalar root", "just text\n", false},
		{"syntax error", "title: [unclosed\n", false},
		{"binary node", "title: X\nblob: !!binary aGVsbG8=\n", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newPaths(t)
			testsupport.WritePackage(t, p.source, "good", "title: Good\n", nil)
			testsupport.WritePackage(t, p.source, "zbad", tc.descriptor, nil)

			_, err := build.New(p.source, p.output, build.WithLogger(logging.NewNop())).Run(context.Background())
			var malformed *build.MalformedPackageError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected *MalformedPackageError, got %T (%v)", err, err)
			}
			if !strings.HasSuffix(malformed.Descriptor, filepath.Join("zbad", "info.yml")) {
				t.Fatalf("error should name the descriptor, got %s", malformed.Descriptor)
			}
			if got := errors.Is(err, document.ErrUnsupportedType); got != tc.unsupported {
				t.Fatalf("errors.Is(ErrUnsupportedType) = %v, want %v", got, tc.unsupported)
			}
			if _, statErr := os.Stat(filepath.Join(p.output, build.ManifestName)); !os.IsNotExist(statErr) {
				t.Fatal("no manifest may be written for a malformed package")
			}
		})
	}
}

func TestBuildMissingAssetFails(t *testing.T) {
	p := newPaths(t)
	testsupport.WritePackage(t, p.source, "s", "title: S\nnotes: remember to retime\n", nil)

	_, err := build.New(p.source, p.output, build.WithLogger(logging.NewNop())).Run(context.Background())
	var pathErr *rewrite.PathError
	if !errors.As(err, &pathErr) || pathErr.Field != "notes" {
		t.Fatalf("expected PathError for notes, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(p.output, build.ManifestName)); !os.IsNotExist(statErr) {
		t.Fatal("no manifest may be written when rewriting fails")
	}

	run(t, p, build.WithTextFields("title", "notes"))
}

func TestBuildCleansStaleOutput(t *testing.T) {
	p := newPaths(t)
	testsupport.WritePackage(t, p.source, "s", "title: S\n", nil)
	testsupport.WriteText(t, filepath.Join(p.output, "res", "stale"), "old")
	testsupport.WriteText(t, filepath.Join(p.output, "leftover.txt"), "old")

	result := run(t, p)
	if len(result.Cleanup.Removed) != 2 {
		t.Fatalf("got %d removed, want 2", len(result.Cleanup.Removed))
	}
	files := snapshot(t, p.output)
	if _, ok := files["leftover.txt"]; ok {
		t.Fatal("stale file survived the build")
	}

	testsupport.WriteText(t, filepath.Join(p.output, "leftover.txt"), "old")
	run(t, p, build.WithCleanOutput(false))
	if _, ok := snapshot(t, p.output)["leftover.txt"]; !ok {
		t.Fatal("clean_output=false should keep existing files")
	}
}

func TestBuildLinkMode(t *testing.T) {
	p := newPaths(t)
	dir := testsupport.WritePackage(t, p.source, "s", "title: S\naudio: a.ogg\n", map[string]string{"a.ogg": "a"})

	result := run(t, p, build.WithMode(materialize.Link))
	if result.Materialize.Linked != 1 {
		t.Fatalf("got %d linked, want 1", result.Materialize.Linked)
	}
	target, err := os.Readlink(filepath.Join(p.output, build.ResDir, sum("a")))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != filepath.Join(dir, "a.ogg") {
		t.Fatalf("got target %s", target)
	}
}

func TestBuildBLAKE3(t *testing.T) {
	p := newPaths(t)
	testsupport.WritePackage(t, p.source, "s", "title: S\naudio: a.ogg\n", map[string]string{"a.ogg": "a"})

	result := run(t, p, build.WithAlgorithm(contenthash.BLAKE3))
	got := readManifest(t, p.output)[0]["audio"].(string)
	if got == sum("a") || !contenthash.IsDigest(got) {
		t.Fatalf("expected a blake3-512 address, got %s", got)
	}
	if result.References[0].Hash != got {
		t.Fatalf("reference hash %s does not match manifest %s", result.References[0].Hash, got)
	}
}

func TestBuildRecordsLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	p := paths{source: cfg.Paths.SourceDir, output: cfg.Paths.OutputDir}
	testsupport.WritePackage(t, p.source, "s", "title: S\naudio: a.ogg\n", map[string]string{"a.ogg": "abc"})

	result := run(t, p, build.WithLedger(store))

	testsupport.WritePackage(t, p.source, "t", "title: T\naudio: missing.ogg\n", nil)
	if _, err := build.New(p.source, p.output, build.WithLedger(store), build.WithLogger(logging.NewNop())).Run(context.Background()); err == nil {
		t.Fatal("expected second build to fail")
	}

	builds, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(builds) != 2 {
		t.Fatalf("got %d builds, want 2", len(builds))
	}
	var succeeded *ledger.Build
	for i := range builds {
		if builds[i].ID == result.ID {
			succeeded = &builds[i]
		}
	}
	if succeeded == nil || succeeded.Status != ledger.StatusSucceeded || succeeded.Assets != 1 || succeeded.Fingerprint != result.Fingerprint {
		t.Fatalf("unexpected ledger row: %+v", succeeded)
	}
	assets, err := store.Assets(context.Background(), result.ID)
	if err != nil || len(assets) != 1 || assets[0].Size != 3 {
		t.Fatalf("unexpected assets: %+v (%v)", assets, err)
	}
}

func TestBuildWritesArchive(t *testing.T) {
	p := newPaths(t)
	testsupport.WritePackage(t, p.source, "s", "title: S\naudio: a.ogg\n", map[string]string{"a.ogg": "a"})
	dest := filepath.Join(t.TempDir(), "bundle.tar.zst")

	result := run(t, p, build.WithArchive(dest))
	if result.Archive == nil || result.Archive.Entries != 4 {
		t.Fatalf("unexpected archive summary: %+v", result.Archive)
	}
	entries, err := archive.List(afero.NewOsFs(), dest)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	prefix := filepath.Base(p.output) + "/"
	want := []string{prefix + build.InfoName, prefix + "res/", prefix + "res/" + sum("a"), prefix + build.ManifestName}
	for i, entry := range entries {
		if entry.Name != want[i] {
			t.Fatalf("entry %d: got %q want %q", i, entry.Name, want[i])
		}
	}
}

func TestBuildLockPreventsConcurrentBuilds(t *testing.T) {
	p := newPaths(t)
	testsupport.WritePackage(t, p.source, "s", "title: S\n", nil)
	if err := os.MkdirAll(filepath.Dir(p.output), 0o755); err != nil {
		t.Fatal(err)
	}
	lock := flock.New(p.output + ".lock")
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()

	_, err = build.New(p.source, p.output, build.WithLogger(logging.NewNop())).Run(context.Background())
	if !errors.Is(err, build.ErrBuildInProgress) {
		t.Fatalf("expected ErrBuildInProgress, got %v", err)
	}
}

func TestBuildRejectsSourceInsideOutput(t *testing.T) {
	p := newPaths(t)
	inside := paths{source: filepath.Join(p.output, "songs"), output: p.output}
	testsupport.WritePackage(t, inside.source, "s", "title: S\n", nil)
	if _, err := build.New(inside.source, inside.output).Run(context.Background()); err == nil {
		t.Fatal("expected error when the source lives inside the output")
	}
}

func TestBuildRejectsDotDotNamedSourceInsideOutput(t *testing.T) {
	p := newPaths(t)
	source := filepath.Join(p.output, "..songs")
	testsupport.WritePackage(t, source, "song1", "title: S\naudio: a.mp3\n", map[string]string{"a.mp3": "audio"})

	_, err := build.New(source, p.output).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "must not be inside output") {
		t.Fatalf("expected source-inside-output error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(source, "song1", "a.mp3")); err != nil {
		t.Fatalf("source asset should survive a refused build: %v", err)
	}
}

func TestBuildEmptySourceAndMissingSource(t *testing.T) {
	p := newPaths(t)
	if err := os.MkdirAll(p.source, 0o755); err != nil {
		t.Fatal(err)
	}
	result := run(t, p)
	if len(result.Packages) != 0 {
		t.Fatalf("got %d packages", len(result.Packages))
	}
	data, _ := os.ReadFile(result.ManifestPath)
	if string(data) != "[]\n" {
		t.Fatalf("got %q want %q", data, "[]\n")
	}

	missing := paths{source: filepath.Join(t.TempDir(), "none"), output: p.output}
	if _, err := build.New(missing.source, missing.output).Run(context.Background()); err == nil {
		t.Fatal("expected preflight failure for missing source")
	}
}

func TestBuildHonoursCancellation(t *testing.T) {
	p := newPaths(t)
	testsupport.WritePackage(t, p.source, "s", "title: S\n", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := build.New(p.source, p.output, build.WithLogger(logging.NewNop())).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLinkMode(), testsupport.WithTextFields("title", "notes"))
	cfg.Runtime.APIEnable = true
	cfg.Runtime.APIURL = "https://api.example.test/?a=1&b=2"
	testsupport.WritePackage(t, cfg.Paths.SourceDir, "s", "title: S\nnotes: text\naudio: a.ogg\n", map[string]string{"a.ogg": "a"})

	opts := append(build.ConfigOptions(cfg), build.WithLogger(logging.NewNop()))
	result, err := build.New(cfg.Paths.SourceDir, cfg.Paths.OutputDir, opts...).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Mode != materialize.Link || result.Materialize.Linked != 1 {
		t.Fatalf("config mode not applied: %+v", result.Materialize)
	}
	info, _ := os.ReadFile(result.InfoPath)
	if !strings.Contains(string(info), `"apiUrl": "https://api.example.test/?a=1&b=2"`) {
		t.Fatalf("unexpected info.json: %s", info)
	}
}

func TestBuildOnMemFs(t *testing.T) {
	memFs := afero.NewMemMapFs()
	files := map[string]string{
		"/songs/one/SongInfo.YAML": "title: One\naudio: a.ogg\n",
		"/songs/one/a.ogg":         "a",
		"/songs/.git/info.yml":     "audio: nothing.ogg\n",
	}
	for path, content := range files {
		if err := afero.WriteFile(memFs, path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	result, err := build.New("/songs", "/out",
		build.WithFs(memFs),
		build.WithExcludes("**/.git/**"),
		build.WithLogger(logging.NewNop()),
	).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Packages) != 1 {
		t.Fatalf("got %d packages, want 1", len(result.Packages))
	}
	got, err := afero.ReadFile(memFs, "/out/res/"+sum("a"))
	if err != nil || string(got) != "a" {
		t.Fatalf("got %q (%v)", got, err)
	}
}
