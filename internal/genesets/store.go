// Package genesets is the MSigDB-style gene set store: one row per set plus
// a gene→set projection for lookups by member gene.
package genesets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/fetch"
	"github.com/guokai8/pathwaydb/internal/store"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS gene_sets (
	gene_set_id TEXT PRIMARY KEY,
	gene_set_name TEXT,
	collection TEXT,
	description TEXT,
	genes TEXT,
	organism TEXT
);
CREATE INDEX IF NOT EXISTS idx_gene_sets_collection ON gene_sets(collection);
CREATE INDEX IF NOT EXISTS idx_gene_sets_name ON gene_sets(gene_set_name);
CREATE INDEX IF NOT EXISTS idx_gene_sets_organism ON gene_sets(organism);

CREATE TABLE IF NOT EXISTS gene_geneset_map (
	gene_symbol TEXT NOT NULL,
	gene_set_id TEXT NOT NULL,
	collection TEXT,
	PRIMARY KEY (gene_symbol, gene_set_id)
);
CREATE INDEX IF NOT EXISTS idx_gene_geneset_map_set ON gene_geneset_map(gene_set_id);
`

// commitEvery is the number of sets written per transaction.
const commitEvery = 100

// Store holds gene sets.
type Store struct {
	db     *sql.DB
	path   string
	log    *zap.Logger
	mu     sync.Mutex
	closed bool
}

// Open opens or creates the gene set store at path.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, apperrors.Newf("genesets.open", apperrors.ErrConfiguration, "no database path configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Storage("genesets.open", err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, apperrors.Storage("genesets.open", fmt.Errorf("open sqlite %s: %w", path, err))
	}
	db.SetMaxOpenConns(4)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, apperrors.Storage("genesets.open", fmt.Errorf("create schema: %w", err))
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, path: path, log: log}, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return apperrors.Storage("genesets.close", s.db.Close())
}

// Count returns the number of stored sets in collection for organism. Empty
// arguments match everything.
func (s *Store) Count(ctx context.Context, collection, organism string) (int, error) {
	q := "SELECT COUNT(*) FROM gene_sets WHERE 1 = 1"
	var args []any
	if collection != "" {
		q += " AND collection = ?"
		args = append(args, strings.ToUpper(collection))
	}
	if organism != "" {
		q += " AND organism = ?"
		args = append(args, organism)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, apperrors.Storage("genesets.count", err)
	}
	return n, nil
}

// Replace writes sets for one collection, replacing sets with the same id.
// Each set's gene mapping is rebuilt so it always mirrors its gene list.
// Work is committed every 100 sets. Collection names are stored upper-case.
func (s *Store) Replace(ctx context.Context, collection, organism string, sets []api.GeneSet) (int, error) {
	collection = strings.ToUpper(collection)
	written := 0
	for start := 0; start < len(sets); start += commitEvery {
		end := min(start+commitEvery, len(sets))
		if err := s.replaceChunk(ctx, collection, organism, sets[start:end]); err != nil {
			return written, err
		}
		written = end
		s.log.Debug("gene sets committed", zap.String("collection", collection), zap.Int("written", written))
	}
	return written, nil
}

func (s *Store) replaceChunk(ctx context.Context, collection, organism string, sets []api.GeneSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Storage("genesets.replace", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	for _, gs := range sets {
		name := gs.Name
		if name == "" {
			name = gs.ID
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO gene_sets (gene_set_id, gene_set_name, collection, description, genes, organism)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			gs.ID, name, collection, gs.Description, strings.Join(gs.Genes, ","), organism); err != nil {
			return apperrors.Storage("genesets.replace", fmt.Errorf("set %s: %w", gs.ID, err))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM gene_geneset_map WHERE gene_set_id = ?`, gs.ID); err != nil {
			return apperrors.Storage("genesets.replace", err)
		}
		for _, g := range gs.Genes {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO gene_geneset_map (gene_symbol, gene_set_id, collection) VALUES (?, ?, ?)`,
				g, gs.ID, collection); err != nil {
				return apperrors.Storage("genesets.replace", err)
			}
		}
	}
	return apperrors.Storage("genesets.replace", tx.Commit())
}

// DownloadCollection fetches a collection's GMT file and stores it. Unless
// force is set, a collection already present for the organism is left alone
// and its existing size returned.
func (s *Store) DownloadCollection(ctx context.Context, f fetch.Fetcher, url, collection, organism string, force bool) (int, error) {
	collection = strings.ToUpper(collection)
	if !force {
		n, err := s.Count(ctx, collection, organism)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			s.log.Info("collection already present", zap.String("collection", collection), zap.Int("sets", n))
			return n, nil
		}
	}
	body, err := f.Open(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("download collection %s: %w", collection, err)
	}
	defer func() { _ = body.Close() }()
	sets, err := ParseGMT(body)
	if err != nil {
		return 0, err
	}
	for i := range sets {
		sets[i].Collection, sets[i].Organism = collection, organism
	}
	n, err := s.Replace(ctx, collection, organism, sets)
	if err != nil {
		return n, err
	}
	s.log.Info("collection stored", zap.String("collection", collection), zap.Int("sets", n))
	return n, nil
}

// Overlap is a gene set matched by QueryByGene.
type Overlap struct {
	api.GeneSet
	OverlapCount int      `json:"overlap_count"`
	OverlapGenes []string `json:"overlapping_genes"`
	TotalGenes   int      `json:"total_genes"`
}

// QueryByGene finds sets sharing at least minOverlap genes with symbols,
// most overlapping first. collection may be empty.
func (s *Store) QueryByGene(ctx context.Context, symbols []string, collection string, minOverlap int) ([]Overlap, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	if minOverlap < 1 {
		minOverlap = 1
	}
	q := `SELECT m.gene_symbol, g.rowid FROM gene_geneset_map m
		JOIN gene_sets g ON g.gene_set_id = m.gene_set_id
		WHERE m.gene_symbol IN (` + placeholders(len(symbols)) + `)`
	args := make([]any, 0, len(symbols)+1)
	for _, g := range symbols {
		args = append(args, g)
	}
	if collection != "" {
		q += " AND m.collection = ?"
		args = append(args, strings.ToUpper(collection))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.Storage("genesets.query_by_gene", err)
	}
	perGene := map[string]*roaring.Bitmap{}
	for rows.Next() {
		var g string
		var id int64
		if err := rows.Scan(&g, &id); err != nil {
			_ = rows.Close()
			return nil, apperrors.Storage("genesets.query_by_gene", err)
		}
		bm, ok := perGene[g]
		if !ok {
			bm = roaring.New()
			perGene[g] = bm
		}
		bm.Add(uint32(id))
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, apperrors.Storage("genesets.query_by_gene", err)
	}
	_ = rows.Close()

	// query order, without duplicates, for stable overlapping_genes lists
	var genes []string
	seen := map[string]bool{}
	for _, g := range symbols {
		if perGene[g] != nil && !seen[g] {
			seen[g] = true
			genes = append(genes, g)
		}
	}
	if len(genes) == 0 {
		return nil, nil
	}
	bitmaps := make([]*roaring.Bitmap, len(genes))
	for i, g := range genes {
		bitmaps[i] = perGene[g]
	}
	candidates := roaring.FastOr(bitmaps...)

	var out []Overlap
	it := candidates.Iterator()
	for it.HasNext() {
		rowid := it.Next()
		var members []string
		for i, bm := range bitmaps {
			if bm.Contains(rowid) {
				members = append(members, genes[i])
			}
		}
		if len(members) < minOverlap {
			continue
		}
		gs, err := s.byRowID(ctx, int64(rowid))
		if err != nil {
			return nil, err
		}
		out = append(out, Overlap{GeneSet: gs, OverlapCount: len(members), OverlapGenes: members, TotalGenes: len(gs.Genes)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OverlapCount != out[j].OverlapCount {
			return out[i].OverlapCount > out[j].OverlapCount
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SetsContainingAll returns the ids of sets that contain every symbol.
func (s *Store) SetsContainingAll(ctx context.Context, symbols []string, collection string) ([]string, error) {
	hits, err := s.QueryByGene(ctx, symbols, collection, len(dedupe(symbols)))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	sort.Strings(ids)
	return ids, nil
}

const setColumns = "gene_set_id, gene_set_name, collection, description, genes, organism"

func scanSet(sc interface{ Scan(...any) error }) (api.GeneSet, error) {
	var (
		gs                            api.GeneSet
		name, coll, desc, genes, orgn sql.NullString
	)
	if err := sc.Scan(&gs.ID, &name, &coll, &desc, &genes, &orgn); err != nil {
		return api.GeneSet{}, err
	}
	gs.Name, gs.Collection, gs.Description, gs.Organism = name.String, coll.String, desc.String, orgn.String
	if genes.String != "" {
		gs.Genes = strings.Split(genes.String, ",")
	}
	return gs, nil
}

func (s *Store) byRowID(ctx context.Context, rowid int64) (api.GeneSet, error) {
	gs, err := scanSet(s.db.QueryRowContext(ctx, "SELECT "+setColumns+" FROM gene_sets WHERE rowid = ?", rowid))
	if err != nil {
		return api.GeneSet{}, apperrors.Storage("genesets.get", err)
	}
	return gs, nil
}

// Get returns one set by id.
func (s *Store) Get(ctx context.Context, id string) (api.GeneSet, error) {
	gs, err := scanSet(s.db.QueryRowContext(ctx, "SELECT "+setColumns+" FROM gene_sets WHERE gene_set_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return api.GeneSet{}, apperrors.Newf("genesets.get", apperrors.ErrNotFound, "gene set %s", id)
	}
	if err != nil {
		return api.GeneSet{}, apperrors.Storage("genesets.get", err)
	}
	return gs, nil
}

// Filter selects sets by optional predicates; all supplied predicates must hold.
type Filter struct {
	// NamePattern is a case-insensitive LIKE pattern, e.g. "%APOPTOSIS%".
	NamePattern string
	// DescriptionContains is a case-insensitive substring.
	DescriptionContains string
	Collection          string
	Organism            string
	// Genes keeps sets containing any of these symbols.
	Genes []string
	Limit int
}

// Filter returns matching sets ordered by name.
func (s *Store) Filter(ctx context.Context, f Filter) ([]api.GeneSet, error) {
	var (
		where []string
		args  []any
	)
	if f.NamePattern != "" {
		where = append(where, "gene_set_name LIKE ? COLLATE NOCASE")
		args = append(args, f.NamePattern)
	}
	if f.Collection != "" {
		where = append(where, "collection = ?")
		args = append(args, strings.ToUpper(f.Collection))
	}
	if f.Organism != "" {
		where = append(where, "organism = ?")
		args = append(args, f.Organism)
	}
	if len(f.Genes) > 0 {
		where = append(where, "gene_set_id IN (SELECT gene_set_id FROM gene_geneset_map WHERE gene_symbol IN ("+placeholders(len(f.Genes))+"))")
		for _, g := range f.Genes {
			args = append(args, g)
		}
	}
	if f.DescriptionContains != "" {
		where = append(where, "instr(lower(description), lower(?)) > 0")
		args = append(args, f.DescriptionContains)
	}
	q := "SELECT " + setColumns + " FROM gene_sets"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY gene_set_name"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.Storage("genesets.filter", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore
	var out []api.GeneSet
	for rows.Next() {
		gs, err := scanSet(rows)
		if err != nil {
			return nil, apperrors.Storage("genesets.filter", err)
		}
		out = append(out, gs)
	}
	return out, apperrors.Storage("genesets.filter", rows.Err())
}

// QueryByName matches set names against a LIKE pattern, case-insensitively.
func (s *Store) QueryByName(ctx context.Context, pattern, collection string) ([]api.GeneSet, error) {
	return s.Filter(ctx, Filter{NamePattern: pattern, Collection: collection})
}

// Export maps set id to member genes, optionally for one collection.
func (s *Store) Export(ctx context.Context, collection string) (map[string][]string, error) {
	sets, err := s.Filter(ctx, Filter{Collection: collection})
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(sets))
	for _, gs := range sets {
		out[gs.ID] = gs.Genes
	}
	return out, nil
}

// ToDataFrame flattens memberships into GeneID, GeneSet, Collection,
// Description rows sorted by gene then set.
func (s *Store) ToDataFrame(ctx context.Context, collection string, limit int) (*store.Frame, error) {
	q := `SELECT m.gene_symbol, m.gene_set_id, COALESCE(g.collection, ''), COALESCE(g.description, '')
		FROM gene_geneset_map m JOIN gene_sets g ON g.gene_set_id = m.gene_set_id`
	var args []any
	if collection != "" {
		q += " WHERE g.collection = ?"
		args = append(args, strings.ToUpper(collection))
	}
	q += " ORDER BY m.gene_symbol, m.gene_set_id"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.Storage("genesets.to_dataframe", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	f := &store.Frame{Columns: []string{"GeneID", "GeneSet", "Collection", "Description"}, Rows: [][]string{}}
	for rows.Next() {
		row := make([]string, 4)
		if err := rows.Scan(&row[0], &row[1], &row[2], &row[3]); err != nil {
			return nil, apperrors.Storage("genesets.to_dataframe", err)
		}
		f.Rows = append(f.Rows, row)
	}
	return f, apperrors.Storage("genesets.to_dataframe", rows.Err())
}

// Stats summarizes the store.
type Stats struct {
	TotalGeneSets    int            `json:"total_gene_sets"`
	TotalCollections int            `json:"total_collections"`
	Organisms        int            `json:"organisms"`
	ByCollection     map[string]int `json:"by_collection"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByCollection: map[string]int{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT collection), COUNT(DISTINCT organism) FROM gene_sets`).
		Scan(&st.TotalGeneSets, &st.TotalCollections, &st.Organisms)
	if err != nil {
		return Stats{}, apperrors.Storage("genesets.stats", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT collection, COUNT(*) FROM gene_sets GROUP BY collection ORDER BY collection`)
	if err != nil {
		return Stats{}, apperrors.Storage("genesets.stats", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore
	for rows.Next() {
		var c sql.NullString
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return Stats{}, apperrors.Storage("genesets.stats", err)
		}
		st.ByCollection[c.String] = n
	}
	return st, apperrors.Storage("genesets.stats", rows.Err())
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func dedupe(xs []string) []string {
	seen := make(map[string]struct{}, len(xs))
	var out []string
	for _, x := range xs {
		if _, ok := seen[x]; !ok {
			seen[x] = struct{}{}
			out = append(out, x)
		}
	}
	return out
}
