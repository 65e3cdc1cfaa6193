// Package store is the embedded annotation store: one SQLite table per source
// with a (gene_id, target) natural key, secondary indexes on every filterable
// column, and a key/value metadata sidecar.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/guokai8/pathwaydb/internal/apperrors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store is an open annotation store. It is safe for concurrent readers; writes
// are expected from a single goroutine at a time.
type Store struct {
	db       *sql.DB
	path     string
	kind     Kind
	layout   layout
	readOnly bool
	log      *zap.Logger

	mu     sync.Mutex
	closed bool
	ready  bool // tables verified to exist
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Open opens or creates the store at path. Tables and indexes are created if
// absent; existing rows are preserved.
func Open(ctx context.Context, path string, kind Kind, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, apperrors.New("store.open", apperrors.ErrConfiguration, errors.New("no database path configured"))
	}
	l, err := layoutFor(kind)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Storage("store.open", fmt.Errorf("create dir %s: %w", dir, err))
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.Storage("store.open", fmt.Errorf("open sqlite %s: %w", path, err))
	}
	db.SetMaxOpenConns(4)

	if _, err := db.ExecContext(ctx, l.ddl()); err != nil {
		_ = db.Close()
		return nil, apperrors.Storage("store.open", fmt.Errorf("create schema: %w", err))
	}

	s := &Store{db: db, path: path, kind: kind, layout: l, log: zap.NewNop(), ready: true}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// OpenReadOnly opens an existing store without creating anything. Queries
// against a file lacking the expected tables fail with a configuration error.
func OpenReadOnly(path string, kind Kind, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, apperrors.New("store.open", apperrors.ErrConfiguration, errors.New("no database path configured"))
	}
	l, err := layoutFor(kind)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, apperrors.New("store.open", apperrors.ErrConfiguration, err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, apperrors.Storage("store.open", fmt.Errorf("open sqlite %s: %w", path, err))
	}
	db.SetMaxOpenConns(4)

	s := &Store{db: db, path: path, kind: kind, layout: l, readOnly: true, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Path returns the location the store was opened on.
func (s *Store) Path() string { return s.path }

// Kind returns the annotation source held by the store.
func (s *Store) Kind() Kind { return s.kind }

// ReadOnly reports whether the store was opened with OpenReadOnly.
func (s *Store) ReadOnly() bool { return s.readOnly }

// Close releases the database handle. Calling it more than once is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return apperrors.Storage("store.close", s.db.Close())
}

// check verifies the store is open and its tables exist.
func (s *Store) check(ctx context.Context, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.New(op, apperrors.ErrConfiguration, errors.New("store is closed"))
	}
	if s.ready {
		return nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (?, 'metadata')`,
		s.layout.table).Scan(&n)
	if err != nil {
		return apperrors.Storage(op, err)
	}
	if n < 2 {
		return apperrors.Newf(op, apperrors.ErrConfiguration, "%s has no %s table", s.path, s.layout.table)
	}
	s.ready = true
	return nil
}

func (s *Store) writable(ctx context.Context, op string) error {
	if s.readOnly {
		return apperrors.Newf(op, apperrors.ErrConfiguration, "%s is opened read-only", s.path)
	}
	return s.check(ctx, op)
}

// Count returns the number of annotation rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.check(ctx, "store.count"); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.layout.table).Scan(&n); err != nil {
		return 0, apperrors.Storage("store.count", err)
	}
	return n, nil
}

// SetMetadata upserts a metadata value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	if err := s.writable(ctx, "store.set_metadata"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return apperrors.Storage("store.set_metadata", err)
}

// Metadata returns the value for key. ok is false when the key is absent.
func (s *Store) Metadata(ctx context.Context, key string) (value string, ok bool, err error) {
	if err := s.check(ctx, "store.metadata"); err != nil {
		return "", false, err
	}
	var v sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.Storage("store.metadata", err)
	}
	return v.String, true, nil
}

// Stats summarizes the store contents.
type Stats struct {
	Total               int      `json:"total_annotations"`
	UniqueGenes         int      `json:"unique_genes"`
	UniqueTargets       int      `json:"unique_targets"`
	UniqueEvidenceCodes int      `json:"unique_evidence_codes,omitempty"`
	NamedTargets        int      `json:"named_targets"`
	Organisms           []string `json:"organisms,omitempty"`
}

// Stats computes row and distinct-value counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if err := s.check(ctx, "store.stats"); err != nil {
		return Stats{}, err
	}
	l := s.layout
	var st Stats
	q := fmt.Sprintf(`SELECT COUNT(*), COUNT(DISTINCT gene_id), COUNT(DISTINCT %[2]s),
		COUNT(DISTINCT evidence_code), COUNT(DISTINCT CASE WHEN %[3]s IS NOT NULL THEN %[2]s END)
		FROM %[1]s`, l.table, l.targetCol, l.nameCol)
	if err := s.db.QueryRowContext(ctx, q).Scan(&st.Total, &st.UniqueGenes, &st.UniqueTargets,
		&st.UniqueEvidenceCodes, &st.NamedTargets); err != nil {
		return Stats{}, apperrors.Storage("store.stats", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT organism FROM "+l.table+" WHERE organism IS NOT NULL ORDER BY organism")
	if err != nil {
		return Stats{}, apperrors.Storage("store.stats", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return Stats{}, apperrors.Storage("store.stats", err)
		}
		st.Organisms = append(st.Organisms, o)
	}
	return st, apperrors.Storage("store.stats", rows.Err())
}
