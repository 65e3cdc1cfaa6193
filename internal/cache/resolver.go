// Package cache decides where an annotation store for a (dataset, species)
// pair comes from: data shipped with a distribution, the shared per-user
// cache, or a fresh ingestion into that cache.
package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/metrics"
	"github.com/guokai8/pathwaydb/internal/species"
	"github.com/guokai8/pathwaydb/internal/store"
	"go.uber.org/zap"
)

// Provenance says where a resolved store came from.
type Provenance string

const (
	Bundled   Provenance = "bundled"
	Cached    Provenance = "cached"
	Ephemeral Provenance = "ephemeral"
)

// Builder fills an empty store for one species.
type Builder interface {
	Ingest(ctx context.Context, sp species.Species, s *store.Store) error
	Enrich(ctx context.Context, sp species.Species, s *store.Store) error
}

// Mirror is a remote copy of cache files keyed by relative cache path.
type Mirror interface {
	Fetch(ctx context.Context, name, dst string) (bool, error)
	Publish(ctx context.Context, name, src string) error
}

// Resolver resolves stores of one dataset kind.
type Resolver struct {
	Kind       store.Kind
	CacheDir   string
	BundledDir string
	Builder    Builder
	Mirror     Mirror
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// EnsureOptions tune EnsureCached.
type EnsureOptions struct {
	ForceRefresh   bool
	SkipEnrichment bool
}

// EnsureResult reports what EnsureCached did.
type EnsureResult struct {
	Path string
	// Source is "existing", "mirror" or "ingest".
	Source string
	Rows   int
}

// relPath is the cache-relative file name, e.g. "go_annotations/go_human.db".
func (r *Resolver) relPath(sp species.Species) string {
	k := r.Kind.String()
	return filepath.Join(k+"_annotations", fmt.Sprintf("%s_%s.db", k, sp.Name))
}

// CachePath returns the shared cache location for a species. The same input
// always yields the same path.
func (r *Resolver) CachePath(name string) (string, error) {
	sp, err := species.Lookup(name)
	if err != nil {
		return "", err
	}
	if r.CacheDir == "" {
		return "", apperrors.Newf("cache.path", apperrors.ErrConfiguration, "no cache directory configured")
	}
	return filepath.Join(r.CacheDir, r.relPath(sp)), nil
}

// BundledPath returns the shipped store for a species, if one exists.
func (r *Resolver) BundledPath(name string) (string, bool) {
	sp, err := species.Lookup(name)
	if err != nil || r.BundledDir == "" {
		return "", false
	}
	p := filepath.Join(r.BundledDir, fmt.Sprintf("%s_%s.db", r.Kind, sp.Name))
	if fi, err := os.Stat(p); err != nil || fi.Size() == 0 {
		return "", false
	}
	return p, true
}

// EnsureCached makes sure the shared cache holds a non-empty store for the
// species. Without ForceRefresh an existing non-empty store is left alone.
// Otherwise the store is fetched from the mirror or ingested (and enriched
// unless SkipEnrichment) into a temporary file that replaces the cache entry
// once ingestion completes. A failed enrichment still installs the entry and
// returns its error alongside the result.
func (r *Resolver) EnsureCached(ctx context.Context, name string, opts EnsureOptions) (EnsureResult, error) {
	sp, err := species.Lookup(name)
	if err != nil {
		return EnsureResult{}, err
	}
	path, err := r.CachePath(sp.Name)
	if err != nil {
		return EnsureResult{}, err
	}
	log := r.logger().With(zap.String("dataset", r.Kind.String()), zap.String("species", sp.Name))

	if !opts.ForceRefresh {
		if n, err := r.rows(ctx, path); err == nil && n > 0 {
			log.Debug("cache hit", zap.String("path", path), zap.Int("rows", n))
			return EnsureResult{Path: path, Source: "existing", Rows: n}, nil
		}
		if r.Mirror != nil {
			n, ok, err := r.fromMirror(ctx, sp, path)
			if err != nil {
				log.Warn("mirror fetch failed, ingesting instead", zap.Error(err))
			} else if ok {
				log.Info("cache restored from mirror", zap.String("path", path), zap.Int("rows", n))
				return EnsureResult{Path: path, Source: "mirror", Rows: n}, nil
			}
		}
	}

	if r.Builder == nil {
		return EnsureResult{}, apperrors.Newf("cache.ensure", apperrors.ErrConfiguration,
			"no %s store cached for %s and no builder configured", r.Kind, sp.Name)
	}
	n, installed, err := r.build(ctx, sp, path, opts.SkipEnrichment, log)
	if !installed {
		return EnsureResult{}, err
	}
	return EnsureResult{Path: path, Source: "ingest", Rows: n}, err
}

// build ingests into a temporary file and installs it at path. Once ingestion
// has committed, the store is installed even when enrichment fails; the
// enrichment error is still returned and a later backfill picks up the
// unnamed targets.
func (r *Resolver) build(ctx context.Context, sp species.Species, path string, skipEnrich bool, log *zap.Logger) (int, bool, error) {
	tmp := path + ".building"
	_ = os.Remove(tmp)
	defer func() { _ = os.Remove(tmp) }() // no-op after rename

	s, err := store.Open(ctx, tmp, r.Kind, store.WithLogger(log))
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = s.Close() }()

	log.Info("building cache", zap.String("path", path))
	if err := r.Builder.Ingest(ctx, sp, s); err != nil {
		return 0, false, fmt.Errorf("ingest %s %s: %w", r.Kind, sp.Name, err)
	}
	var enrichErr error
	if !skipEnrich {
		if err := r.Builder.Enrich(ctx, sp, s); err != nil {
			enrichErr = fmt.Errorf("enrich %s %s: %w", r.Kind, sp.Name, err)
			log.Warn("enrichment incomplete, installing ingested store", zap.Error(err))
		}
	}
	// The caller's context may already be cancelled here.
	n, err := s.Count(context.WithoutCancel(ctx))
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		log.Warn("ingestion produced an empty store")
	}
	if err := s.Close(); err != nil {
		return 0, false, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, false, apperrors.Storage("cache.ensure", fmt.Errorf("install %s: %w", path, err))
	}
	log.Info("cache ready", zap.String("path", path), zap.Int("rows", n))
	return n, true, enrichErr
}

func (r *Resolver) fromMirror(ctx context.Context, sp species.Species, path string) (int, bool, error) {
	tmp := path + ".mirror"
	defer func() { _ = os.Remove(tmp) }()
	ok, err := r.Mirror.Fetch(ctx, filepath.ToSlash(r.relPath(sp)), tmp)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := r.rows(ctx, tmp)
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, false, apperrors.Storage("cache.mirror", err)
	}
	return n, true, nil
}

// rows counts annotations in the store at path without creating anything.
func (r *Resolver) rows(ctx context.Context, path string) (int, error) {
	s, err := store.OpenReadOnly(path, r.Kind)
	if err != nil {
		return 0, err
	}
	defer func() { _ = s.Close() }()
	return s.Count(ctx)
}

// OpenCached opens the shared cache store, building it first if needed.
func (r *Resolver) OpenCached(ctx context.Context, name string) (*store.Store, error) {
	res, err := r.EnsureCached(ctx, name, EnsureOptions{})
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, res.Path, r.Kind, store.WithLogger(r.logger()))
}

// Resolve returns a store for the species, trying bundled data first when
// preferBundled is set, then the shared cache (built on demand).
func (r *Resolver) Resolve(ctx context.Context, name string, preferBundled bool) (*store.Store, Provenance, error) {
	if preferBundled {
		if p, ok := r.BundledPath(name); ok {
			s, err := store.OpenReadOnly(p, r.Kind, store.WithLogger(r.logger()))
			if err == nil {
				r.Metrics.CacheResolved(r.Kind.String(), string(Bundled))
				return s, Bundled, nil
			}
			r.logger().Warn("bundled store unusable", zap.String("path", p), zap.Error(err))
		}
	}
	s, err := r.OpenCached(ctx, name)
	if err != nil {
		return nil, "", err
	}
	r.Metrics.CacheResolved(r.Kind.String(), string(Cached))
	return s, Cached, nil
}

// MaterializeCopy writes an independent copy of the shared cache store to
// dst. When the cache is absent it is built first if autoDownload is set,
// otherwise a not-found error is returned.
func (r *Resolver) MaterializeCopy(ctx context.Context, name, dst string, autoDownload bool) (string, error) {
	if dst == "" {
		return "", apperrors.Newf("cache.copy", apperrors.ErrConfiguration, "no destination path")
	}
	path, err := r.CachePath(name)
	if err != nil {
		return "", err
	}
	if n, err := r.rows(ctx, path); err != nil || n == 0 {
		if !autoDownload {
			return "", apperrors.Newf("cache.copy", apperrors.ErrNotFound,
				"no cached %s store for %s at %s", r.Kind, name, path)
		}
		if _, err := r.EnsureCached(ctx, name, EnsureOptions{}); err != nil {
			return "", err
		}
	}
	if err := copyFile(path, dst); err != nil {
		return "", apperrors.Storage("cache.copy", err)
	}
	r.Metrics.CacheResolved(r.Kind.String(), string(Ephemeral))
	return dst, nil
}

// Publish uploads the cached store for a species to the mirror.
func (r *Resolver) Publish(ctx context.Context, name string) error {
	if r.Mirror == nil {
		return apperrors.Newf("cache.publish", apperrors.ErrConfiguration, "no mirror configured")
	}
	sp, err := species.Lookup(name)
	if err != nil {
		return err
	}
	path, err := r.CachePath(sp.Name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return apperrors.New("cache.publish", apperrors.ErrNotFound, err)
	}
	return r.Mirror.Publish(ctx, filepath.ToSlash(r.relPath(sp)), path)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".copy-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
