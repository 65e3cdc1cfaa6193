package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
)

// Filter is the set of optional query predicates. Zero-valued fields are
// ignored. Set predicates match any listed value; all supplied predicates must
// hold.
type Filter struct {
	GeneIDs       []string
	GeneSymbols   []string
	TargetIDs     []string
	EvidenceCodes []string
	// Aspect is the raw GO aspect letter (P, F or C).
	Aspect string
	// Namespace is a friendly alias for Aspect, e.g. "biological_process".
	Namespace string
	Organism  string
	// TargetName is a case-insensitive substring of the term or pathway name.
	TargetName string
	// Limit caps the number of rows; 0 means no cap.
	Limit int
}

var namespaceAliases = map[string]string{
	"biological_process": api.AspectProcess,
	"molecular_function": api.AspectFunction,
	"cellular_component": api.AspectComponent,
	"bp":                 api.AspectProcess,
	"mf":                 api.AspectFunction,
	"cc":                 api.AspectComponent,
	"p":                  api.AspectProcess,
	"f":                  api.AspectFunction,
	"c":                  api.AspectComponent,
}

// NormalizeNamespace maps a namespace alias or aspect letter to the aspect
// letter stored in the table. Unknown values are an ErrInvalidFilter.
func NormalizeNamespace(ns string) (string, error) {
	if a, ok := namespaceAliases[strings.ToLower(strings.TrimSpace(ns))]; ok {
		return a, nil
	}
	return "", apperrors.Newf("store.filter", apperrors.ErrInvalidFilter,
		"unknown namespace %q (want biological_process, molecular_function, cellular_component or P/F/C)", ns)
}

// clauses accumulates WHERE predicates and their bound arguments.
type clauses struct {
	where []string
	args  []any
}

func (c *clauses) eq(col, v string) {
	c.where = append(c.where, col+" = ?")
	c.args = append(c.args, v)
}

func (c *clauses) in(col string, vs []string) {
	if len(vs) == 0 {
		return
	}
	c.where = append(c.where, col+" IN ("+placeholders(len(vs))+")")
	for _, v := range vs {
		c.args = append(c.args, v)
	}
}

func (c *clauses) contains(col, sub string) {
	c.where = append(c.where, "instr(lower("+col+"), lower(?)) > 0")
	c.args = append(c.args, sub)
}

func (c *clauses) sql() string {
	if len(c.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.where, " AND ")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// build turns f into clauses for layout l.
func (s *Store) build(f Filter) (*clauses, error) {
	l := s.layout
	c := &clauses{}
	c.in("gene_id", f.GeneIDs)
	c.in("gene_symbol", f.GeneSymbols)
	c.in(l.targetCol, f.TargetIDs)

	aspect := f.Aspect
	if f.Namespace != "" {
		if s.kind != KindTerm {
			return nil, apperrors.Newf("store.filter", apperrors.ErrInvalidFilter,
				"namespace is only valid for term annotations")
		}
		ns, err := NormalizeNamespace(f.Namespace)
		if err != nil {
			return nil, err
		}
		if aspect != "" && !strings.EqualFold(aspect, ns) {
			return nil, apperrors.Newf("store.filter", apperrors.ErrInvalidFilter,
				"namespace %q conflicts with aspect %q", f.Namespace, f.Aspect)
		}
		aspect = ns
	}
	c.in("evidence_code", f.EvidenceCodes)
	if aspect != "" {
		c.eq("aspect", strings.ToUpper(aspect))
	}
	if f.Organism != "" {
		c.eq("organism", f.Organism)
	}
	if f.TargetName != "" {
		// substring match last so the planner narrows on indexed columns first
		c.contains(l.nameCol, f.TargetName)
	}
	if f.Limit < 0 {
		return nil, apperrors.Newf("store.filter", apperrors.ErrInvalidFilter, "negative limit %d", f.Limit)
	}
	return c, nil
}

// Filter returns the rows matching every supplied predicate. An empty Filter
// returns all rows.
func (s *Store) Filter(ctx context.Context, f Filter) ([]api.Annotation, error) {
	if err := s.check(ctx, "store.filter"); err != nil {
		return nil, err
	}
	c, err := s.build(f)
	if err != nil {
		return nil, err
	}
	q := "SELECT " + s.layout.columns() + " FROM " + s.layout.table + c.sql()
	if f.Limit > 0 {
		q += " LIMIT ?"
		c.args = append(c.args, f.Limit)
	}
	return s.queryAnnotations(ctx, "store.filter", q, c.args...)
}

// IDType names the identifier column QueryByGene matches against.
type IDType int

const (
	IDTypeSymbol IDType = iota
	IDTypeGeneID
)

// QueryByGene returns all annotations for the given genes.
func (s *Store) QueryByGene(ctx context.Context, genes []string, idType IDType) ([]api.Annotation, error) {
	if len(genes) == 0 {
		return nil, nil
	}
	f := Filter{GeneSymbols: genes}
	if idType == IDTypeGeneID {
		f = Filter{GeneIDs: genes}
	}
	return s.Filter(ctx, f)
}

// QueryByTarget returns all annotations for the given pathway or term ids.
func (s *Store) QueryByTarget(ctx context.Context, targets ...string) ([]api.Annotation, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	return s.Filter(ctx, Filter{TargetIDs: targets})
}

// QueryByEvidence returns all annotations carrying one of the evidence codes.
func (s *Store) QueryByEvidence(ctx context.Context, codes ...string) ([]api.Annotation, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	return s.Filter(ctx, Filter{EvidenceCodes: codes})
}

func (s *Store) queryAnnotations(ctx context.Context, op, q string, args ...any) ([]api.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.Storage(op, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []api.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, apperrors.Storage(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage(op, err)
	}
	return out, nil
}

func scanAnnotation(rows *sql.Rows) (api.Annotation, error) {
	var (
		a                          api.Annotation
		name, evidence, aspect, og sql.NullString
	)
	if err := rows.Scan(&a.GeneID, &a.GeneSymbol, &a.TargetID, &name, &evidence, &aspect, &og); err != nil {
		return api.Annotation{}, fmt.Errorf("scan annotation: %w", err)
	}
	a.TargetName = name.String
	a.EvidenceCode = evidence.String
	a.Aspect = aspect.String
	a.Organism = og.String
	return a, nil
}
