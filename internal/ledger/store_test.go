package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"songpack/internal/ledger"
)

func openStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "state", "builds.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := ledger.Build{
		ID:           "b-1",
		StartedAt:    base,
		FinishedAt:   base.Add(1500 * time.Millisecond),
		SourceDir:    "/songs",
		OutputDir:    "/build",
		Mode:         "copy",
		Algorithm:    "sha512",
		Packages:     2,
		Assets:       3,
		Aliases:      1,
		BytesWritten: 4096,
		Fingerprint:  ledger.Fingerprint([]byte("[]")),
		Status:       ledger.StatusSucceeded,
	}
	assets := []ledger.Asset{
		{Hash: "bb", SourcePath: "/songs/a/x.png", Size: 10},
		{Hash: "aa", SourcePath: "/songs/a/a.ogg", Size: 20},
	}
	if err := store.Record(ctx, first, assets); err != nil {
		t.Fatalf("Record: %v", err)
	}
	second := first
	second.ID = "b-2"
	second.StartedAt = base.Add(time.Hour)
	second.FinishedAt = base.Add(time.Hour + time.Second)
	second.Status = ledger.StatusFailed
	second.ErrorMessage = "materialize: 1 files failed"
	second.Fingerprint = ""
	if err := store.Record(ctx, second, nil); err != nil {
		t.Fatalf("Record second: %v", err)
	}

	builds, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(builds) != 2 || builds[0].ID != "b-2" || builds[1].ID != "b-1" {
		t.Fatalf("expected newest first, got %+v", builds)
	}
	if builds[0].Status != ledger.StatusFailed || builds[0].ErrorMessage == "" {
		t.Fatalf("unexpected failed build row: %+v", builds[0])
	}
	got := builds[1]
	if !got.StartedAt.Equal(first.StartedAt) || got.Duration() != 1500*time.Millisecond {
		t.Fatalf("timestamps not preserved: %+v", got)
	}
	if got.Fingerprint != first.Fingerprint || got.BytesWritten != 4096 || got.Aliases != 1 {
		t.Fatalf("got %+v want %+v", got, first)
	}

	limited, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("List limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("got %d builds, want 1", len(limited))
	}

	stored, err := store.Assets(ctx, "b-1")
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}
	if len(stored) != 2 || stored[0].Hash != "aa" || stored[1].Size != 10 {
		t.Fatalf("unexpected assets: %+v", stored)
	}
}

func TestGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if got, err := store.Get(ctx, "missing"); err != nil || got != nil {
		t.Fatalf("got %+v, %v; want nil, nil", got, err)
	}
	now := time.Now()
	if err := store.Record(ctx, ledger.Build{ID: "x", StartedAt: now, FinishedAt: now, Status: ledger.StatusSucceeded}, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := store.Get(ctx, "x")
	if err != nil || got == nil || got.ID != "x" {
		t.Fatalf("Get: %+v, %v", got, err)
	}
}

func TestRecordRequiresID(t *testing.T) {
	store := openStore(t)
	if err := store.Record(context.Background(), ledger.Build{}, nil); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	build := ledger.Build{ID: "dup", Status: ledger.StatusSucceeded}
	if err := store.Record(ctx, build, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, build, nil); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
}

func TestReopenAndSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "builds.db")
	store, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	store, err = ledger.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := ledger.Open(path); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := ledger.Fingerprint([]byte(`[{"title":"Song"}]`))
	b := ledger.Fingerprint([]byte(`[{"title":"Song"}]`))
	c := ledger.Fingerprint([]byte(`[{"title":"Other"}]`))
	if a != b || a == c || a == "" {
		t.Fatalf("unexpected fingerprints: %s %s %s", a, b, c)
	}
}
