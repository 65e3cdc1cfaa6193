package store

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, kind Kind, rows []api.Annotation) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), kind)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	if len(rows) > 0 {
		_, err := s.Insert(context.Background(), rows)
		require.NoError(t, err)
	}
	return s
}

func termRows() []api.Annotation {
	return []api.Annotation{
		{GeneID: "UniProtKB:P04637", GeneSymbol: "TP53", TargetID: "GO:0006915", TargetName: "apoptotic process", EvidenceCode: "IDA", Aspect: "P", Organism: "human"},
		{GeneID: "UniProtKB:P04637", GeneSymbol: "TP53", TargetID: "GO:0003677", TargetName: "DNA binding", EvidenceCode: "IEA", Aspect: "F", Organism: "human"},
		{GeneID: "UniProtKB:P04637", GeneSymbol: "TP53", TargetID: "GO:0006281", TargetName: "DNA repair", EvidenceCode: "IMP", Aspect: "P", Organism: "human"},
		{GeneID: "UniProtKB:P38398", GeneSymbol: "BRCA1", TargetID: "GO:0006281", TargetName: "DNA repair", EvidenceCode: "IDA", Aspect: "P", Organism: "human"},
		{GeneID: "UniProtKB:P38398", GeneSymbol: "BRCA1", TargetID: "GO:0005634", TargetName: "nucleus", EvidenceCode: "IEA", Aspect: "C", Organism: "human"},
		{GeneID: "UniProtKB:Q00987", GeneSymbol: "MDM2", TargetID: "GO:0005634", EvidenceCode: "IBA", Aspect: "C", Organism: "human"},
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("empty path is a configuration error", func(t *testing.T) {
		_, err := Open(ctx, "", KindTerm)
		assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	})

	t.Run("reopen preserves rows", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "go.db")
		s, err := Open(ctx, path, KindTerm)
		require.NoError(t, err)
		_, err = s.Insert(ctx, termRows())
		require.NoError(t, err)
		require.NoError(t, s.Close())

		s, err = Open(ctx, path, KindTerm)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 6, n)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		s := openTestStore(t, KindPathway, nil)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
		_, err := s.Count(ctx)
		assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	})

	t.Run("read-only without tables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bare.db")
		db, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		_, err = db.Exec("CREATE TABLE other (x INTEGER)")
		require.NoError(t, err)
		require.NoError(t, db.Close())

		s, err := OpenReadOnly(path, KindTerm)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		_, err = s.Filter(ctx, Filter{})
		assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	})

	t.Run("read-only missing file", func(t *testing.T) {
		_, err := OpenReadOnly(filepath.Join(t.TempDir(), "nope.db"), KindTerm)
		assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	})

	t.Run("read-only rejects writes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ro.db")
		s, err := Open(ctx, path, KindTerm)
		require.NoError(t, err)
		_, err = s.Insert(ctx, termRows())
		require.NoError(t, err)
		require.NoError(t, s.Close())

		ro, err := OpenReadOnly(path, KindTerm)
		require.NoError(t, err)
		defer func() { _ = ro.Close() }()
		rows, err := ro.Filter(ctx, Filter{GeneSymbols: []string{"TP53"}})
		require.NoError(t, err)
		assert.Len(t, rows, 3)
		_, err = ro.SetTargetNames(ctx, map[string]string{"GO:0005634": "nucleus"})
		assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	})
}

func TestInsertIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, KindTerm, nil)

	n, err := s.Insert(ctx, termRows())
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)

	// same natural keys with different payload are ignored, not overwritten
	again := termRows()
	again[0].EvidenceCode = "TAS"
	n, err = s.Insert(ctx, again)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	rows, err := s.Filter(ctx, Filter{TargetIDs: []string{"GO:0006915"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "IDA", rows[0].EvidenceCode)

	total, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
}

func TestWriterBatches(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, KindPathway, nil)

	w, err := s.NewWriter(ctx, 2)
	require.NoError(t, err)
	for _, id := range []string{"hsa05200", "hsa05210", "hsa04110"} {
		require.NoError(t, w.Add(ctx, api.Annotation{GeneID: "hsa:7157", GeneSymbol: "TP53", TargetID: id, Organism: "hsa"}))
	}

	// first batch of two is visible before Close
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.EqualValues(t, 3, w.Inserted())

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, KindTerm, termRows())

	t.Run("no predicates returns all rows", func(t *testing.T) {
		rows, err := s.Filter(ctx, Filter{})
		require.NoError(t, err)
		assert.Len(t, rows, 6)
	})

	t.Run("conjunction", func(t *testing.T) {
		rows, err := s.Filter(ctx, Filter{GeneSymbols: []string{"TP53"}, Aspect: "P"})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		for _, r := range rows {
			assert.Equal(t, "TP53", r.GeneSymbol)
			assert.Equal(t, "P", r.Aspect)
		}
	})

	t.Run("membership is OR within a predicate", func(t *testing.T) {
		rows, err := s.Filter(ctx, Filter{EvidenceCodes: []string{"IDA", "IMP"}})
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("namespace alias equals aspect", func(t *testing.T) {
		byAspect, err := s.Filter(ctx, Filter{Aspect: "P"})
		require.NoError(t, err)
		byNamespace, err := s.Filter(ctx, Filter{Namespace: "biological_process"})
		require.NoError(t, err)
		assert.ElementsMatch(t, byAspect, byNamespace)
		assert.Len(t, byNamespace, 3)

		for ns, aspect := range map[string]string{"BP": "P", "mf": "F", "CC": "C", "Molecular_Function": "F"} {
			want, err := s.Filter(ctx, Filter{Aspect: aspect})
			require.NoError(t, err)
			got, err := s.Filter(ctx, Filter{Namespace: ns})
			require.NoError(t, err, ns)
			assert.ElementsMatch(t, want, got, ns)
		}
	})

	t.Run("unknown namespace is rejected", func(t *testing.T) {
		_, err := s.Filter(ctx, Filter{Namespace: "biological_proces"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidFilter)
	})

	t.Run("conflicting namespace and aspect", func(t *testing.T) {
		_, err := s.Filter(ctx, Filter{Namespace: "cellular_component", Aspect: "P"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidFilter)
	})

	t.Run("case-insensitive name substring", func(t *testing.T) {
		upper, err := s.Filter(ctx, Filter{TargetName: "DNA"})
		require.NoError(t, err)
		lower, err := s.Filter(ctx, Filter{TargetName: "dna"})
		require.NoError(t, err)
		assert.ElementsMatch(t, upper, lower)
		assert.Len(t, upper, 3)
	})

	t.Run("substring combined with exact predicates", func(t *testing.T) {
		rows, err := s.Filter(ctx, Filter{TargetName: "repair", GeneSymbols: []string{"BRCA1"}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "GO:0006281", rows[0].TargetID)
	})

	t.Run("limit", func(t *testing.T) {
		rows, err := s.Filter(ctx, Filter{Limit: 4})
		require.NoError(t, err)
		assert.Len(t, rows, 4)
	})

	t.Run("input is bound, not interpolated", func(t *testing.T) {
		rows, err := s.Filter(ctx, Filter{GeneSymbols: []string{"TP53' OR '1'='1"}})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("query helpers", func(t *testing.T) {
		rows, err := s.QueryByGene(ctx, []string{"UniProtKB:P38398"}, IDTypeGeneID)
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		rows, err = s.QueryByTarget(ctx, "GO:0005634")
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		rows, err = s.QueryByEvidence(ctx, "IEA")
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})
}

func TestPathwayScenario(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, KindPathway, []api.Annotation{
		{GeneID: "hsa:7157", GeneSymbol: "TP53", TargetID: "hsa05200", TargetName: "Pathways in cancer", Organism: "hsa"},
		{GeneID: "hsa:7157", GeneSymbol: "TP53", TargetID: "hsa05210", Organism: "hsa"},
	})

	rows, err := s.Filter(ctx, Filter{GeneSymbols: []string{"TP53"}})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	sets, err := s.ToGeneSets(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"hsa05200": {"TP53"}, "hsa05210": {"TP53"}}, sets)

	frame, err := s.ToDataFrame(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"GeneID", "PATH", "Annot"}, frame.Columns)
	assert.Equal(t, [][]string{
		{"TP53", "hsa05200", "Pathways in cancer"},
		{"TP53", "hsa05210", ""},
	}, frame.Rows)

	_, err = s.Filter(ctx, Filter{Namespace: "biological_process"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidFilter)
}

func TestExports(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		s := openTestStore(t, KindTerm, nil)
		recs, err := s.ToRecords(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, recs)
		dict, err := s.ToDict(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, dict)
		frame, err := s.ToDataFrame(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, frame.Len())
		sets, err := s.ToGeneSets(ctx)
		require.NoError(t, err)
		assert.Empty(t, sets)
	})

	s := openTestStore(t, KindTerm, termRows())

	t.Run("limit caps rows", func(t *testing.T) {
		for _, limit := range []int{1, 6, 10} {
			recs, err := s.ToRecords(ctx, limit)
			require.NoError(t, err)
			assert.Len(t, recs, min(limit, 6))
		}
		recs, err := s.ToRecords(ctx, 1)
		require.NoError(t, err)
		assert.Contains(t, recs[0], "go_id")
	})

	t.Run("dict is columnar", func(t *testing.T) {
		dict, err := s.ToDict(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, dict["gene_symbol"], 6)
		assert.Len(t, dict["term_name"], 6)
	})

	t.Run("data frame is sorted with fixed columns", func(t *testing.T) {
		frame, err := s.ToDataFrame(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"GeneID", "TERM", "Aspect", "Evidence"}, frame.Columns)
		require.Equal(t, 6, frame.Len())
		assert.Equal(t, []string{"BRCA1", "GO:0005634", "C", "IEA"}, frame.Rows[0])
		assert.Equal(t, []string{"TP53", "GO:0006915", "P", "IDA"}, frame.Rows[5])

		var buf bytes.Buffer
		require.NoError(t, frame.WriteCSV(&buf, '\t'))
		assert.Contains(t, buf.String(), "GeneID\tTERM\tAspect\tEvidence\n")
	})

	t.Run("gene sets keep duplicate symbols", func(t *testing.T) {
		// isoforms: two gene ids with the same symbol on one term
		_, err := s.Insert(ctx, []api.Annotation{
			{GeneID: "UniProtKB:P04637-2", GeneSymbol: "TP53", TargetID: "GO:0006915", EvidenceCode: "IEA", Aspect: "P"},
		})
		require.NoError(t, err)
		sets, err := s.ToGeneSets(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"TP53", "TP53"}, sets["GO:0006915"])
		assert.ElementsMatch(t, []string{"TP53", "BRCA1"}, sets["GO:0006281"])
	})
}

func TestTargetNames(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, KindTerm, termRows())

	missing, err := s.MissingTargetIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GO:0005634"}, missing)

	n, err := s.SetTargetNames(ctx, map[string]string{
		"GO:0005634": "nucleus",
		"GO:0006915": "should not overwrite",
		"GO:9999999": "",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n) // only MDM2's row was null

	name, ok, err := s.TargetName(ctx, "GO:0006915")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "apoptotic process", name)

	missing, err = s.MissingTargetIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRewriteGeneSymbols(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, KindPathway, []api.Annotation{
		{GeneID: "hsa:7157", GeneSymbol: "7157", TargetID: "hsa05200"},
		{GeneID: "hsa:7157", GeneSymbol: "7157", TargetID: "hsa04115"},
		{GeneID: "hsa:672", GeneSymbol: "672", TargetID: "hsa05200"},
	})

	n, err := s.RewriteGeneSymbols(ctx, map[string]string{"7157": "TP53", "672": "672", "999": "NOPE"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := s.QueryByGene(ctx, []string{"TP53"}, IDTypeSymbol)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	t.Run("chained mapping rewrites each row once", func(t *testing.T) {
		for range 20 {
			s := openTestStore(t, KindPathway, []api.Annotation{
				{GeneID: "hsa:1", GeneSymbol: "1", TargetID: "hsa00010"},
				{GeneID: "hsa:2", GeneSymbol: "2", TargetID: "hsa00010"},
			})
			n, err := s.RewriteGeneSymbols(ctx, map[string]string{"1": "2", "2": "X"})
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			rows, err := s.QueryByGene(ctx, []string{"hsa:1", "hsa:2"}, IDTypeGeneID)
			require.NoError(t, err)
			got := map[string]string{}
			for _, r := range rows {
				got[r.GeneID] = r.GeneSymbol
			}
			require.Equal(t, map[string]string{"hsa:1": "2", "hsa:2": "X"}, got)
		}
	})

	t.Run("rewrite can run twice", func(t *testing.T) {
		n, err := s.RewriteGeneSymbols(ctx, map[string]string{"TP53": "p53"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	term := openTestStore(t, KindTerm, nil)
	_, err = term.RewriteGeneSymbols(ctx, map[string]string{"a": "b"})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestMetadataAndStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, KindTerm, termRows())

	_, ok, err := s.Metadata(ctx, "organism")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMetadata(ctx, "organism", "human"))
	require.NoError(t, s.SetMetadata(ctx, "organism", "mouse"))
	v, ok, err := s.Metadata(ctx, "organism")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "mouse", v)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Total:               6,
		UniqueGenes:         3,
		UniqueTargets:       4,
		UniqueEvidenceCodes: 4,
		NamedTargets:        4,
		Organisms:           []string{"human"},
	}, st)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("GO")
	require.NoError(t, err)
	assert.Equal(t, KindTerm, k)
	k, err = ParseKind("pathway")
	require.NoError(t, err)
	assert.Equal(t, KindPathway, k)
	_, err = ParseKind("reactome")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}
