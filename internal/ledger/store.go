package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"
)

// Status is the terminal state of a recorded build.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Build is one row of build history.
type Build struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	SourceDir    string
	OutputDir    string
	Mode         string
	Algorithm    string
	Packages     int
	Assets       int
	Aliases      int
	BytesWritten int64
	Fingerprint  string
	Status       Status
	ErrorMessage string
}

// Duration reports how long the build ran.
func (b Build) Duration() time.Duration {
	return b.FinishedAt.Sub(b.StartedAt)
}

// Asset is one content-addressed file placed by a build.
type Asset struct {
	Hash       string
	SourcePath string
	Size       int64
}

// Fingerprint returns a short, stable identifier for manifest bytes so two
// builds can be compared at a glance.
func Fingerprint(manifest []byte) string {
	return strconv.FormatUint(xxhash.Sum64(manifest), 16)
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages build history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Record stores a finished build and its assets in one transaction.
func (s *Store) Record(ctx context.Context, build Build, assets []Asset) error {
	if build.ID == "" {
		return errors.New("record build: missing id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO builds (
            id, started_at, finished_at, source_dir, output_dir, mode, algorithm,
            packages, assets, aliases, bytes_written, fingerprint, status, error_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		build.ID,
		build.StartedAt.UTC().Format(timeLayout),
		build.FinishedAt.UTC().Format(timeLayout),
		build.SourceDir,
		build.OutputDir,
		build.Mode,
		build.Algorithm,
		build.Packages,
		build.Assets,
		build.Aliases,
		build.BytesWritten,
		nullableString(build.Fingerprint),
		string(build.Status),
		nullableString(build.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}

	if len(assets) > 0 {
		stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO assets (build_id, hash, source_path, size) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("prepare asset insert: %w", err)
		}
		defer stmt.Close()
		for _, asset := range assets {
			if _, err := stmt.ExecContext(ctx, build.ID, asset.Hash, asset.SourcePath, asset.Size); err != nil {
				return fmt.Errorf("insert asset %s: %w", asset.Hash, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

const buildColumns = "id, started_at, finished_at, source_dir, output_dir, mode, algorithm, packages, assets, aliases, bytes_written, fingerprint, status, error_message"

// List returns the most recent builds first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Build, error) {
	query := "SELECT " + buildColumns + " FROM builds ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		build, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		builds = append(builds, *build)
	}
	return builds, rows.Err()
}

// Get returns the build with id, or nil when none exists.
func (s *Store) Get(ctx context.Context, id string) (*Build, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+buildColumns+" FROM builds WHERE id = ?", id)
	build, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get build %s: %w", id, err)
	}
	return build, nil
}

// Assets returns the assets recorded for a build, ordered by hash.
func (s *Store) Assets(ctx context.Context, buildID string) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT hash, source_path, size FROM assets WHERE build_id = ? ORDER BY hash", buildID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var asset Asset
		if err := rows.Scan(&asset.Hash, &asset.SourcePath, &asset.Size); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func scanBuild(scanner interface{ Scan(dest ...any) error }) (*Build, error) {
	var (
		build       Build
		startedRaw  string
		finishedRaw string
		status      string
		fingerprint sql.NullString
		errorMsg    sql.NullString
	)
	if err := scanner.Scan(
		&build.ID,
		&startedRaw,
		&finishedRaw,
		&build.SourceDir,
		&build.OutputDir,
		&build.Mode,
		&build.Algorithm,
		&build.Packages,
		&build.Assets,
		&build.Aliases,
		&build.BytesWritten,
		&fingerprint,
		&status,
		&errorMsg,
	); err != nil {
		return nil, err
	}
	build.StartedAt = parseTime(startedRaw)
	build.FinishedAt = parseTime(finishedRaw)
	build.Fingerprint = fingerprint.String
	build.Status = Status(status)
	build.ErrorMessage = errorMsg.String
	return &build, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
