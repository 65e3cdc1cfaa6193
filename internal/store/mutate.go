package store

import (
	"context"
	"fmt"

	"github.com/guokai8/pathwaydb/internal/apperrors"
)

// MissingTargetIDs returns the distinct target ids that have no name yet, in
// ascending order.
func (s *Store) MissingTargetIDs(ctx context.Context) ([]string, error) {
	if err := s.check(ctx, "store.missing_targets"); err != nil {
		return nil, err
	}
	l := s.layout
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s WHERE %s IS NULL ORDER BY %[1]s", l.targetCol, l.table, l.nameCol))
	if err != nil {
		return nil, apperrors.Storage("store.missing_targets", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Storage("store.missing_targets", err)
		}
		ids = append(ids, id)
	}
	return ids, apperrors.Storage("store.missing_targets", rows.Err())
}

// SetTargetNames fills in names for targets that have none, in one
// transaction. Rows that already carry a name and empty names are skipped.
// It returns the number of rows updated.
func (s *Store) SetTargetNames(ctx context.Context, names map[string]string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}
	if err := s.writable(ctx, "store.set_target_names"); err != nil {
		return 0, err
	}
	l := s.layout

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.Storage("store.set_target_names", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"UPDATE %s SET %s = ? WHERE %s = ? AND %[2]s IS NULL", l.table, l.nameCol, l.targetCol))
	if err != nil {
		return 0, apperrors.Storage("store.set_target_names", err)
	}
	defer func() { _ = stmt.Close() }()

	var updated int64
	for id, name := range names {
		if name == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, name, id)
		if err != nil {
			return 0, apperrors.Storage("store.set_target_names", fmt.Errorf("update %s: %w", id, err))
		}
		n, _ := res.RowsAffected()
		updated += n
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.Storage("store.set_target_names", err)
	}
	return updated, nil
}

// RewriteGeneSymbols replaces gene symbols using mapping (old to new). Only
// pathway stores support it; their symbols start out as native ids. It
// returns the number of distinct symbols rewritten.
func (s *Store) RewriteGeneSymbols(ctx context.Context, mapping map[string]string) (int, error) {
	if s.kind != KindPathway {
		return 0, apperrors.Newf("store.rewrite_symbols", apperrors.ErrConfiguration,
			"symbol rewrite is only supported for pathway stores")
	}
	if err := s.writable(ctx, "store.rewrite_symbols"); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.Storage("store.rewrite_symbols", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`CREATE TEMP TABLE IF NOT EXISTS symbol_rewrite (old TEXT PRIMARY KEY, new TEXT NOT NULL)`); err != nil {
		return 0, apperrors.Storage("store.rewrite_symbols", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM temp.symbol_rewrite`); err != nil {
		return 0, apperrors.Storage("store.rewrite_symbols", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO temp.symbol_rewrite (old, new) VALUES (?, ?)`)
	if err != nil {
		return 0, apperrors.Storage("store.rewrite_symbols", err)
	}
	for from, to := range mapping {
		if to == "" || to == from {
			continue
		}
		if _, err := stmt.ExecContext(ctx, from, to); err != nil {
			_ = stmt.Close()
			return 0, apperrors.Storage("store.rewrite_symbols", err)
		}
	}
	if err := stmt.Close(); err != nil {
		return 0, apperrors.Storage("store.rewrite_symbols", err)
	}

	// Every row is rewritten once from its stored value, so chained
	// mappings (1 to 2, 2 to X) do not cascade.
	var converted int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT gene_symbol) FROM `+s.layout.table+
			` WHERE gene_symbol IN (SELECT old FROM temp.symbol_rewrite)`).Scan(&converted); err != nil {
		return 0, apperrors.Storage("store.rewrite_symbols", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE `+s.layout.table+
			` SET gene_symbol = (SELECT new FROM temp.symbol_rewrite WHERE old = gene_symbol)`+
			` WHERE gene_symbol IN (SELECT old FROM temp.symbol_rewrite)`); err != nil {
		return 0, apperrors.Storage("store.rewrite_symbols", err)
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE temp.symbol_rewrite`); err != nil {
		return 0, apperrors.Storage("store.rewrite_symbols", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.Storage("store.rewrite_symbols", err)
	}
	return converted, nil
}

// TargetName returns the stored name of one target. ok is false when the
// target is unknown or unnamed.
func (s *Store) TargetName(ctx context.Context, id string) (name string, ok bool, err error) {
	if err := s.check(ctx, "store.target_name"); err != nil {
		return "", false, err
	}
	l := s.layout
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ? AND %[1]s IS NOT NULL LIMIT 1", l.nameCol, l.table, l.targetCol), id)
	if err != nil {
		return "", false, apperrors.Storage("store.target_name", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore
	if rows.Next() {
		if err := rows.Scan(&name); err != nil {
			return "", false, apperrors.Storage("store.target_name", err)
		}
		return name, true, nil
	}
	return "", false, apperrors.Storage("store.target_name", rows.Err())
}
