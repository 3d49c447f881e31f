// Package migrations applies the embedded SQL files to the Postgres
// document store and records which ones ran.
package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embedded embed.FS

var (
	ErrUnknownMigration = errors.New("migration does not exist")
	ErrChecksumMismatch = errors.New("applied migration was modified")
)

type FileInfo struct {
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
}

type Status struct {
	Name      string `json:"name"`
	Checksum  string `json:"checksum"`
	Applied   bool   `json:"applied"`
	AppliedAt string `json:"applied_at,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

type Service struct {
	files   fs.FS
	store   *pgAppliedStore
	nowFunc func() time.Time
}

// NewService uses the migrations compiled into the binary.
func NewService(db *sql.DB) (*Service, error) {
	files, err := fs.Sub(embedded, "sql")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return NewServiceFS(files, db)
}

func NewServiceFS(files fs.FS, db *sql.DB) (*Service, error) {
	if files == nil {
		return nil, fmt.Errorf("migration files are required")
	}
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	store := &pgAppliedStore{db: db}
	if err := store.ensureSchema(); err != nil {
		return nil, err
	}
	return &Service{files: files, store: store, nowFunc: time.Now}, nil
}

func (s *Service) List() ([]FileInfo, error) {
	entries, err := fs.ReadDir(s.files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := fs.ReadFile(s.files, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, FileInfo{Name: e.Name(), Checksum: checksum(b)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Service) Status(ctx context.Context) ([]Status, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	applied, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(files))
	for _, f := range files {
		st := Status{Name: f.Name, Checksum: f.Checksum}
		if rec, ok := applied[f.Name]; ok {
			st.Applied = true
			st.AppliedAt = rec.appliedAt
			st.Modified = rec.checksum != "" && rec.checksum != f.Checksum
		}
		out = append(out, st)
	}
	return out, nil
}

// Apply runs every pending migration in name order, each in its own
// transaction, and returns the names it ran. It refuses to run anything
// while an applied file has changed since it was applied.
func (s *Service) Apply(ctx context.Context) ([]string, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range status {
		if st.Modified {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, st.Name)
		}
	}

	var ran []string
	for _, st := range status {
		if st.Applied {
			continue
		}
		body, err := fs.ReadFile(s.files, st.Name)
		if err != nil {
			return ran, fmt.Errorf("read migration %s: %w", st.Name, err)
		}
		if err := s.store.apply(ctx, st.Name, st.Checksum, string(body), s.nowFunc()); err != nil {
			return ran, err
		}
		ran = append(ran, st.Name)
	}
	return ran, nil
}

// MarkApplied records name as applied without running it.
func (s *Service) MarkApplied(ctx context.Context, name string, appliedAt time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" || !strings.HasSuffix(name, ".sql") || strings.Contains(name, "/") {
		return fmt.Errorf("invalid migration name")
	}
	b, err := fs.ReadFile(s.files, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrUnknownMigration, name)
		}
		return fmt.Errorf("read migration: %w", err)
	}
	return s.store.SetApplied(ctx, name, checksum(b), appliedAt.UTC())
}

type appliedRecord struct {
	checksum  string
	appliedAt string
}

type pgAppliedStore struct {
	db *sql.DB
}

func (s *pgAppliedStore) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	checksum TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure schema_migrations schema: %w", err)
	}
	return nil
}

func (s *pgAppliedStore) Load(ctx context.Context) (map[string]appliedRecord, error) {
	const q = `SELECT name, checksum, applied_at FROM schema_migrations`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query migration state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]appliedRecord)
	for rows.Next() {
		var name, sum string
		var appliedAt time.Time
		if err := rows.Scan(&name, &sum, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan migration state: %w", err)
		}
		out[name] = appliedRecord{checksum: sum, appliedAt: appliedAt.UTC().Format(time.RFC3339)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration state: %w", err)
	}
	return out, nil
}

const upsertApplied = `
INSERT INTO schema_migrations (name, checksum, applied_at)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET checksum = EXCLUDED.checksum, applied_at = EXCLUDED.applied_at`

func (s *pgAppliedStore) SetApplied(ctx context.Context, name, sum string, appliedAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, upsertApplied, name, sum, appliedAt.UTC()); err != nil {
		return fmt.Errorf("upsert migration state: %w", err)
	}
	return nil
}

func (s *pgAppliedStore) apply(ctx context.Context, name, sum, body string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("run migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, upsertApplied, name, sum, at.UTC()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

func checksum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
