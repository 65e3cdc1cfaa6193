package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"io"

	"github.com/guokai8/pathwaydb/internal/apperrors"
)

// nativeColumns lists the stored column names in scan order.
func (l layout) nativeColumns() []string {
	return []string{"gene_id", "gene_symbol", l.targetCol, l.nameCol, "evidence_code", "aspect", "organism"}
}

// ToRecords returns up to limit rows (0 = all) keyed by stored column name.
// NULL columns are omitted from each record.
func (s *Store) ToRecords(ctx context.Context, limit int) ([]map[string]string, error) {
	rows, err := s.Filter(ctx, Filter{Limit: limit})
	if err != nil {
		return nil, err
	}
	cols := s.layout.nativeColumns()
	out := make([]map[string]string, 0, len(rows))
	for _, a := range rows {
		vals := []string{a.GeneID, a.GeneSymbol, a.TargetID, a.TargetName, a.EvidenceCode, a.Aspect, a.Organism}
		rec := make(map[string]string, len(cols))
		for i, c := range cols {
			if vals[i] != "" {
				rec[c] = vals[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// ToDict returns up to limit rows (0 = all) in columnar form: stored column
// name to values, row-aligned. An empty store yields an empty map.
func (s *Store) ToDict(ctx context.Context, limit int) (map[string][]string, error) {
	rows, err := s.Filter(ctx, Filter{Limit: limit})
	if err != nil {
		return nil, err
	}
	out := map[string][]string{}
	if len(rows) == 0 {
		return out, nil
	}
	cols := s.layout.nativeColumns()
	for _, c := range cols {
		out[c] = make([]string, 0, len(rows))
	}
	for _, a := range rows {
		vals := []string{a.GeneID, a.GeneSymbol, a.TargetID, a.TargetName, a.EvidenceCode, a.Aspect, a.Organism}
		for i, c := range cols {
			out[c] = append(out[c], vals[i])
		}
	}
	return out, nil
}

// Frame is a column-labelled table of string cells.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Records returns each row as a column-name keyed map.
func (f *Frame) Records() []map[string]string {
	out := make([]map[string]string, len(f.Rows))
	for i, r := range f.Rows {
		m := make(map[string]string, len(f.Columns))
		for j, c := range f.Columns {
			m[c] = r[j]
		}
		out[i] = m
	}
	return out
}

// WriteCSV writes the header and rows to w, separated by sep (',' or '\t').
func (f *Frame) WriteCSV(w io.Writer, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(f.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// ToDataFrame exports the analysis table sorted by (gene_symbol, target).
// Term stores yield GeneID, TERM, Aspect, Evidence; pathway stores yield
// GeneID, PATH, Annot.
func (s *Store) ToDataFrame(ctx context.Context, limit int) (*Frame, error) {
	if err := s.check(ctx, "store.to_dataframe"); err != nil {
		return nil, err
	}
	l := s.layout
	var q string
	if s.kind == KindTerm {
		q = "SELECT gene_symbol, " + l.targetCol + ", aspect, evidence_code FROM " + l.table
	} else {
		q = "SELECT gene_symbol, " + l.targetCol + ", " + l.nameCol + " FROM " + l.table
	}
	q += " ORDER BY gene_symbol, " + l.targetCol
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.Storage("store.to_dataframe", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	f := &Frame{Columns: append([]string(nil), l.frameCols...), Rows: [][]string{}}
	n := len(f.Columns)
	for rows.Next() {
		cells := make([]sql.NullString, n)
		ptrs := make([]any, n)
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperrors.Storage("store.to_dataframe", err)
		}
		row := make([]string, n)
		for i, c := range cells {
			row[i] = c.String
		}
		f.Rows = append(f.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("store.to_dataframe", err)
	}
	return f, nil
}

// ToGeneSets maps each target id to the symbols annotated to it. A symbol
// appears once per contributing row, so a gene annotated to the same term
// under several evidence codes is listed several times.
func (s *Store) ToGeneSets(ctx context.Context) (map[string][]string, error) {
	if err := s.check(ctx, "store.to_gene_sets"); err != nil {
		return nil, err
	}
	l := s.layout
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+l.targetCol+", gene_symbol FROM "+l.table+" ORDER BY "+l.targetCol+", rowid")
	if err != nil {
		return nil, apperrors.Storage("store.to_gene_sets", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	out := map[string][]string{}
	for rows.Next() {
		var target, symbol string
		if err := rows.Scan(&target, &symbol); err != nil {
			return nil, apperrors.Storage("store.to_gene_sets", err)
		}
		out[target] = append(out[target], symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("store.to_gene_sets", err)
	}
	return out, nil
}
