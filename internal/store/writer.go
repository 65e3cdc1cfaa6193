package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of rows per transaction during bulk loads.
const DefaultBatchSize = 10000

// Writer bulk-inserts annotations with insert-if-absent semantics, committing
// every batchSize rows. Rows from earlier batches stay committed when a later
// batch fails.
type Writer struct {
	s         *Store
	tx        *sql.Tx
	stmt      *sql.Stmt
	batchSize int
	pending   int
	inserted  int64
	mu        sync.Mutex
	closed    bool
}

// NewWriter starts a bulk writer. batchSize <= 0 selects DefaultBatchSize.
func (s *Store) NewWriter(ctx context.Context, batchSize int) (*Writer, error) {
	if err := s.writable(ctx, "store.writer"); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	w := &Writer{s: s, batchSize: batchSize}
	if err := w.beginTx(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) beginTx(ctx context.Context) error {
	tx, err := w.s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Storage("store.writer.begin", err)
	}
	l := w.s.layout
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (gene_id, gene_symbol, %s, %s, evidence_code, aspect, organism)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, l.table, l.targetCol, l.nameCol))
	if err != nil {
		_ = tx.Rollback()
		return apperrors.Storage("store.writer.prepare", err)
	}
	w.tx, w.stmt = tx, stmt
	return nil
}

func (w *Writer) commitTx() error {
	if w.tx == nil {
		return nil
	}
	if w.stmt != nil {
		_ = w.stmt.Close()
	}
	err := w.tx.Commit()
	w.tx, w.stmt = nil, nil
	w.pending = 0
	return apperrors.Storage("store.writer.commit", err)
}

// Add inserts a if its natural key is absent. It commits and starts a new
// transaction when the batch is full.
func (w *Writer) Add(ctx context.Context, a api.Annotation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return apperrors.Newf("store.writer.add", apperrors.ErrConfiguration, "writer is closed")
	}
	if w.tx == nil {
		if err := w.beginTx(ctx); err != nil {
			return err
		}
	}

	res, err := w.stmt.ExecContext(ctx, a.GeneID, a.GeneSymbol, a.TargetID,
		nullable(a.TargetName), nullable(a.EvidenceCode), nullable(a.Aspect), nullable(a.Organism))
	if err != nil {
		return apperrors.Storage("store.writer.add", fmt.Errorf("insert %s/%s: %w", a.GeneID, a.TargetID, err))
	}
	if n, err := res.RowsAffected(); err == nil {
		w.inserted += n
	}

	w.pending++
	if w.pending >= w.batchSize {
		if err := w.commitTx(); err != nil {
			return err
		}
		w.s.log.Debug("batch committed", zap.String("table", w.s.layout.table), zap.Int64("inserted", w.inserted))
	}
	return nil
}

// Flush commits the current batch.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commitTx()
}

// Inserted returns the number of rows actually inserted so far. Rows whose
// natural key already existed are not counted.
func (w *Writer) Inserted() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inserted
}

// Close commits pending rows and releases the transaction. It is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.commitTx()
}

// Insert writes rows in a single batch. Existing natural keys are left
// untouched. It returns the number of rows inserted.
func (s *Store) Insert(ctx context.Context, rows []api.Annotation) (int64, error) {
	w, err := s.NewWriter(ctx, len(rows)+1)
	if err != nil {
		return 0, err
	}
	for _, a := range rows {
		if err := w.Add(ctx, a); err != nil {
			_ = w.Close()
			return w.Inserted(), err
		}
	}
	err = w.Close()
	return w.Inserted(), err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
