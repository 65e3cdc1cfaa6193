package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/species"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBuilder inserts one row per species and counts calls.
type countingBuilder struct {
	ingests, enriches int
	fail, enrichFail  error
}

func (b *countingBuilder) Ingest(ctx context.Context, sp species.Species, s *store.Store) error {
	b.ingests++
	if b.fail != nil {
		return b.fail
	}
	_, err := s.Insert(ctx, []api.Annotation{
		{GeneID: sp.KEGGCode + ":7157", GeneSymbol: "TP53", TargetID: sp.KEGGCode + "05200", Organism: sp.KEGGCode},
	})
	return err
}

func (b *countingBuilder) Enrich(ctx context.Context, sp species.Species, s *store.Store) error {
	b.enriches++
	if b.enrichFail != nil {
		return b.enrichFail
	}
	_, err := s.SetTargetNames(ctx, map[string]string{sp.KEGGCode + "05200": "Pathways in cancer"})
	return err
}

// dirMirror is a Mirror backed by a local directory.
type dirMirror struct {
	root    string
	fetches int
}

func (m *dirMirror) Fetch(_ context.Context, name, dst string) (bool, error) {
	m.fetches++
	src := filepath.Join(m.root, filepath.FromSlash(name))
	if _, err := os.Stat(src); err != nil {
		return false, nil
	}
	return true, copyFile(src, dst)
}

func (m *dirMirror) Publish(_ context.Context, name, src string) error {
	return copyFile(src, filepath.Join(m.root, filepath.FromSlash(name)))
}

func newResolver(t *testing.T) (*Resolver, *countingBuilder) {
	t.Helper()
	b := &countingBuilder{}
	return &Resolver{Kind: store.KindPathway, CacheDir: t.TempDir(), Builder: b}, b
}

func TestCachePath(t *testing.T) {
	r, _ := newResolver(t)
	p1, err := r.CachePath("human")
	require.NoError(t, err)
	p2, err := r.CachePath("Human")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, filepath.Join(r.CacheDir, "kegg_annotations", "kegg_human.db"), p1)

	p3, err := r.CachePath("mouse")
	require.NoError(t, err)
	assert.NotEqual(t, p1, p3)

	_, err = r.CachePath("unicorn")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestEnsureCached(t *testing.T) {
	ctx := context.Background()
	r, b := newResolver(t)

	res, err := r.EnsureCached(ctx, "human", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ingest", res.Source)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, 1, b.ingests)
	assert.Equal(t, 1, b.enriches)

	res, err = r.EnsureCached(ctx, "human", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, "existing", res.Source)
	assert.Equal(t, 1, b.ingests)

	_, err = r.EnsureCached(ctx, "human", EnsureOptions{ForceRefresh: true, SkipEnrichment: true})
	require.NoError(t, err)
	assert.Equal(t, 2, b.ingests)
	assert.Equal(t, 1, b.enriches)

	_, err = os.Stat(res.Path + ".building")
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureCachedFailureLeavesNoEntry(t *testing.T) {
	ctx := context.Background()
	r, b := newResolver(t)
	b.fail = apperrors.New("fetch", apperrors.ErrNetwork, errors.New("offline"))

	_, err := r.EnsureCached(ctx, "rat", EnsureOptions{})
	require.ErrorIs(t, err, apperrors.ErrNetwork)

	path, err := r.CachePath("rat")
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureCachedKeepsIngestWhenEnrichmentStops(t *testing.T) {
	ctx := context.Background()
	r, b := newResolver(t)
	b.enrichFail = context.Canceled

	res, err := r.EnsureCached(ctx, "human", EnsureOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "ingest", res.Source)
	assert.Equal(t, 1, res.Rows)

	path, err := r.CachePath("human")
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	_, err = os.Stat(path + ".building")
	assert.True(t, os.IsNotExist(err))

	s, err := store.OpenReadOnly(path, store.KindPathway)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	missing, err := s.MissingTargetIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hsa05200"}, missing)

	t.Run("later ensure reuses the entry", func(t *testing.T) {
		b.enrichFail = nil
		res, err := r.EnsureCached(ctx, "human", EnsureOptions{})
		require.NoError(t, err)
		assert.Equal(t, "existing", res.Source)
		assert.Equal(t, 1, b.ingests)
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("shared cache is reused", func(t *testing.T) {
		r, b := newResolver(t)
		s1, prov, err := r.Resolve(ctx, "human", true)
		require.NoError(t, err)
		assert.Equal(t, Cached, prov)
		require.NoError(t, s1.Close())

		s2, prov, err := r.Resolve(ctx, "human", true)
		require.NoError(t, err)
		defer func() { _ = s2.Close() }()
		assert.Equal(t, Cached, prov)
		assert.Equal(t, s1.Path(), s2.Path())
		assert.Equal(t, 1, b.ingests)
	})

	t.Run("bundled data wins when preferred", func(t *testing.T) {
		r, b := newResolver(t)
		r.BundledDir = t.TempDir()
		bundled := filepath.Join(r.BundledDir, "kegg_mouse.db")
		s, err := store.Open(ctx, bundled, store.KindPathway)
		require.NoError(t, err)
		_, err = s.Insert(ctx, []api.Annotation{{GeneID: "mmu:1", GeneSymbol: "A", TargetID: "mmu00010"}})
		require.NoError(t, err)
		require.NoError(t, s.Close())

		got, prov, err := r.Resolve(ctx, "mouse", true)
		require.NoError(t, err)
		assert.Equal(t, Bundled, prov)
		assert.True(t, got.ReadOnly())
		require.NoError(t, got.Close())
		assert.Zero(t, b.ingests)

		got, prov, err = r.Resolve(ctx, "mouse", false)
		require.NoError(t, err)
		assert.Equal(t, Cached, prov)
		require.NoError(t, got.Close())
		assert.Equal(t, 1, b.ingests)
	})
}

func TestMaterializeCopy(t *testing.T) {
	ctx := context.Background()
	r, b := newResolver(t)
	dst := filepath.Join(t.TempDir(), "mine", "kegg.db")

	_, err := r.MaterializeCopy(ctx, "human", dst, false)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Zero(t, b.ingests)

	got, err := r.MaterializeCopy(ctx, "human", dst, true)
	require.NoError(t, err)
	assert.Equal(t, dst, got)
	assert.Equal(t, 1, b.ingests)

	src, err := r.CachePath("human")
	require.NoError(t, err)
	want, err := os.ReadFile(src)
	require.NoError(t, err)
	have, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, have)

	// the copy is independent of later cache refreshes
	mine, err := store.Open(ctx, dst, store.KindPathway)
	require.NoError(t, err)
	_, err = mine.Insert(ctx, []api.Annotation{{GeneID: "hsa:1", GeneSymbol: "X", TargetID: "hsa00010"}})
	require.NoError(t, err)
	require.NoError(t, mine.Close())

	shared, err := r.OpenCached(ctx, "human")
	require.NoError(t, err)
	defer func() { _ = shared.Close() }()
	n, err := shared.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMirrorTier(t *testing.T) {
	ctx := context.Background()
	m := &dirMirror{root: t.TempDir()}

	// publisher builds and uploads
	pub, _ := newResolver(t)
	pub.Mirror = m
	_, err := pub.EnsureCached(ctx, "fly", EnsureOptions{})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, "fly"))

	// consumer restores without ingesting
	con, b := newResolver(t)
	con.Mirror = m
	res, err := con.EnsureCached(ctx, "fly", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mirror", res.Source)
	assert.Zero(t, b.ingests)

	// missing in mirror falls back to ingestion
	res, err = con.EnsureCached(ctx, "worm", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ingest", res.Source)
	assert.Equal(t, 1, b.ingests)

	err = (&Resolver{Kind: store.KindPathway, CacheDir: t.TempDir()}).Publish(ctx, "fly")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}
