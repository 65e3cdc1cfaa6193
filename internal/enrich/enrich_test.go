package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/fetch"
	"github.com/guokai8/pathwaydb/internal/metrics"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quickGOServer fakes the QuickGO terms endpoint. Requests containing a key
// in fail return 500.
type quickGOServer struct {
	mu        sync.Mutex
	terms     map[string]string
	fail      map[string]bool
	requested []string
}

func (q *quickGOServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(strings.TrimPrefix(r.URL.Path, "/terms/"), ",")
	q.mu.Lock()
	q.requested = append(q.requested, ids...)
	q.mu.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	var results []map[string]any
	for _, id := range ids {
		if q.fail[id] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if name, ok := q.terms[id]; ok {
			results = append(results, map[string]any{
				"id": id, "name": name, "aspect": "biological_process",
				"definition": map[string]any{"text": "def of " + name},
				"isObsolete": false,
			})
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"numberOfHits": len(results), "results": results})
}

func (q *quickGOServer) sent() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.requested...)
}

func newQuickGO(t *testing.T, q *quickGOServer) *QuickGOTier {
	t.Helper()
	srv := httptest.NewServer(q)
	t.Cleanup(srv.Close)
	return &QuickGOTier{
		Fetcher:   fetch.New(fetch.Options{MinInterval: time.Millisecond}),
		BaseURL:   srv.URL + "/terms",
		BatchSize: 2,
		Pause:     time.Millisecond,
	}
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "go.db"), store.KindTerm)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.Insert(ctx, []api.Annotation{
		{GeneID: "P1", GeneSymbol: "A", TargetID: "GO:0000001", EvidenceCode: "IDA", Aspect: "P"},
		{GeneID: "P2", GeneSymbol: "B", TargetID: "GO:0000001", EvidenceCode: "IEA", Aspect: "P"},
		{GeneID: "P1", GeneSymbol: "A", TargetID: "GO:0000002", EvidenceCode: "IDA", Aspect: "F"},
		{GeneID: "P1", GeneSymbol: "A", TargetID: "GO:0000003", EvidenceCode: "IDA", Aspect: "C"},
		{GeneID: "P3", GeneSymbol: "C", TargetID: "GO:0000004", EvidenceCode: "IMP", Aspect: "P"},
		{GeneID: "P3", GeneSymbol: "C", TargetID: "GO:0000005", EvidenceCode: "IMP", Aspect: "P"},
	})
	require.NoError(t, err)
	return s
}

func TestBackfillCascade(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	q := &quickGOServer{
		terms: map[string]string{
			"GO:0000001": "remote name that must not win",
			"GO:0000002": "molecular thing",
			"GO:0000003": "cell part",
		},
		fail: map[string]bool{"GO:0000005": true},
	}
	m := metrics.New()
	b := &Backfiller{
		Tiers: []Tier{
			&MapTier{TierName: "bundled", Names: map[string]string{"GO:0000001": "first process"}},
			newQuickGO(t, q),
		},
		Metrics: m,
	}

	res, err := b.Backfill(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Missing)
	assert.Equal(t, map[string]int{"bundled": 1, "quickgo": 2}, res.ResolvedBy)
	assert.EqualValues(t, 4, res.Updated) // two rows for GO:0000001
	assert.Equal(t, []string{"GO:0000004", "GO:0000005"}, res.Unresolved)

	// bundled keys never reach the remote tier
	assert.NotContains(t, q.sent(), "GO:0000001")

	rows, err := s.QueryByTarget(ctx, "GO:0000001")
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, "first process", r.TargetName)
	}

	t.Run("second run only retries unresolved keys", func(t *testing.T) {
		before := len(q.sent())
		res, err := b.Backfill(ctx, s)
		require.NoError(t, err)
		assert.EqualValues(t, 0, res.Updated)
		assert.ElementsMatch(t, []string{"GO:0000004", "GO:0000005"}, q.sent()[before:])
	})

	t.Run("new remote data converges", func(t *testing.T) {
		q.mu.Lock()
		q.terms["GO:0000004"] = "late arrival"
		delete(q.fail, "GO:0000005")
		q.mu.Unlock()
		res, err := b.Backfill(ctx, s)
		require.NoError(t, err)
		assert.EqualValues(t, 1, res.Updated)
		assert.Equal(t, []string{"GO:0000005"}, res.Unresolved)
	})
}

func TestBackfillCommitsPerBatch(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	calls := 0
	tier := tierFunc(func(ctx context.Context, keys []string, emit Emit) error {
		for _, k := range keys {
			calls++
			if err := emit(map[string]string{k: "name " + k}); err != nil {
				return err
			}
			if calls == 2 {
				cancel()
				return ctx.Err()
			}
		}
		return nil
	})

	res, err := (&Backfiller{Tiers: []Tier{tier}}).Backfill(cctx, s)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.ResolvedBy["func"])

	missing, err := s.MissingTargetIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, missing, 3)
}

type tierFunc func(ctx context.Context, keys []string, emit Emit) error

func (f tierFunc) Name() string { return "func" }
func (f tierFunc) Resolve(ctx context.Context, keys []string, emit Emit) error {
	return f(ctx, keys, emit)
}

func TestQuickGOPausesBetweenBatches(t *testing.T) {
	q := &quickGOServer{terms: map[string]string{"GO:1": "a", "GO:2": "b", "GO:3": "c", "GO:4": "d", "GO:5": "e"}}
	tier := newQuickGO(t, q)
	tier.Pause = 0

	var emitted int
	start := time.Now()
	err := tier.Resolve(context.Background(), []string{"GO:1", "GO:2", "GO:3", "GO:4", "GO:5"},
		func(names map[string]string) error {
			emitted += len(names)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 5, emitted)
	assert.Len(t, q.sent(), 5)
	assert.GreaterOrEqual(t, time.Since(start), 2*DefaultPause)
}

func TestBatches(t *testing.T) {
	assert.Nil(t, batches(nil, 100))
	got := batches([]string{"a", "b", "c", "d", "e"}, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, got)
}

func TestTermClient(t *testing.T) {
	q := &quickGOServer{terms: map[string]string{"GO:0006915": "apoptotic process"}}
	tc, err := NewTermClient(newQuickGO(t, q), 8)
	require.NoError(t, err)
	ctx := context.Background()

	term, err := tc.GetTerm(ctx, "GO:0006915")
	require.NoError(t, err)
	assert.Equal(t, "apoptotic process", term.Name)
	assert.Equal(t, "biological_process", term.Namespace)

	_, err = tc.GetTerm(ctx, "GO:0006915")
	require.NoError(t, err)
	assert.Len(t, q.sent(), 1, "second lookup served from cache")

	_, err = tc.GetTerm(ctx, "GO:9999999")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestParseOBO(t *testing.T) {
	obo := `format-version: 1.2

[Term]
id: GO:0000001
name: mitochondrion inheritance
namespace: biological_process
def: "The distribution of mitochondria." [GOC:mcc]

[Term]
id: GO:0000005
name: obsolete ribosomal chaperone activity
namespace: molecular_function
is_obsolete: true

[Typedef]
id: part_of
name: part of
`
	terms, err := ParseOBO(strings.NewReader(obo))
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, api.Term{
		ID: "GO:0000001", Name: "mitochondrion inheritance", Namespace: "P",
		Definition: "The distribution of mitochondria.",
	}, terms[0])
	assert.True(t, terms[1].Obsolete)

	assert.Equal(t, map[string]string{"GO:0000001": "mitochondrion inheritance"}, TermNames(terms, false))
	assert.Len(t, TermNames(terms, true), 2)

	path := filepath.Join(t.TempDir(), "names.json")
	require.NoError(t, SaveNameMap(path, TermNames(terms, true)))
	names, err := LoadNameMap(path)
	require.NoError(t, err)
	assert.Equal(t, "obsolete ribosomal chaperone activity", names["GO:0000005"])

	_, err = LoadNameMap(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}
