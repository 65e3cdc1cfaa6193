package cmd

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"time"

	"github.com/guokai8/pathwaydb/internal/cache"
	"github.com/guokai8/pathwaydb/internal/enrich"
	"github.com/guokai8/pathwaydb/internal/fetch"
	"github.com/guokai8/pathwaydb/internal/genesets"
	"github.com/guokai8/pathwaydb/internal/ingest"
	"github.com/guokai8/pathwaydb/internal/species"
	"github.com/guokai8/pathwaydb/internal/store"
	"go.uber.org/zap"
)

func (a *app) fetcher(minInterval time.Duration) *fetch.Client {
	return fetch.New(fetch.Options{
		Timeout:     a.cfg.HTTP.Timeout,
		MinInterval: minInterval,
		UserAgent:   a.cfg.HTTP.UserAgent,
		Logger:      a.log,
	})
}

// fetcherFor paces KEGG requests separately from the other services.
func (a *app) fetcherFor(kind store.Kind) *fetch.Client {
	if kind == store.KindPathway {
		return a.fetcher(a.cfg.HTTP.KEGGMinInterval)
	}
	return a.fetcher(a.cfg.HTTP.MinInterval)
}

func (a *app) pipeline(f fetch.Fetcher) *ingest.Pipeline {
	return &ingest.Pipeline{
		Fetcher:       f,
		BatchSize:     a.cfg.Ingest.BatchSize,
		ProgressEvery: a.cfg.Ingest.ProgressEvery,
		Progress: func(p ingest.Progress) {
			a.log.Info("ingesting",
				zap.String("dataset", p.Dataset),
				zap.Int("lines", p.Lines),
				zap.Int("parsed", p.Parsed),
				zap.Int64("inserted", p.Inserted))
		},
		Logger:  a.log,
		Metrics: a.metrics,
	}
}

func (a *app) quickGO() *enrich.QuickGOTier {
	return &enrich.QuickGOTier{
		Fetcher:   a.fetcher(a.cfg.HTTP.MinInterval),
		BaseURL:   a.cfg.Sources.QuickGOURL,
		BatchSize: a.cfg.Enrich.BatchSize,
		Pause:     a.cfg.Enrich.Pause,
		Logger:    a.log,
		Metrics:   a.metrics,
	}
}

// tiers is the name resolution cascade for a dataset. offline drops tiers
// that need the network.
func (a *app) tiers(kind store.Kind, sp species.Species, offline bool) ([]enrich.Tier, error) {
	var tiers []enrich.Tier
	switch kind {
	case store.KindTerm:
		if p := a.cfg.Enrich.TermNamesFile; p != "" {
			names, err := enrich.LoadNameMap(p)
			if err != nil {
				return nil, err
			}
			tiers = append(tiers, &enrich.MapTier{TierName: "bundled", Names: names, BatchSize: a.cfg.Enrich.BatchSize})
		}
		if !offline {
			tiers = append(tiers, a.quickGO())
		}
	case store.KindPathway:
		if !offline {
			tiers = append(tiers, &enrich.KEGGNamesTier{
				Fetcher:   a.fetcherFor(kind),
				BaseURL:   a.cfg.Sources.KEGGBaseURL,
				Org:       sp.KEGGCode,
				BatchSize: a.cfg.Enrich.BatchSize,
			})
		}
	}
	return tiers, nil
}

func (a *app) backfiller(tiers []enrich.Tier) *enrich.Backfiller {
	return &enrich.Backfiller{Tiers: tiers, Logger: a.log, Metrics: a.metrics}
}

func (a *app) resolver(kind store.Kind, evidence []string) (*cache.Resolver, error) {
	r := &cache.Resolver{
		Kind:       kind,
		CacheDir:   a.cfg.CacheDir,
		BundledDir: a.cfg.BundledDir,
		Mirror:     a.mirror,
		Logger:     a.log,
		Metrics:    a.metrics,
	}
	switch kind {
	case store.KindTerm:
		tiers, err := a.tiers(kind, species.Species{}, false)
		if err != nil {
			return nil, err
		}
		r.Builder = &cache.GOBuilder{
			Pipeline:      a.pipeline(a.fetcherFor(kind)),
			FeedURL:       a.cfg.GAFURL,
			EvidenceCodes: evidence,
			Backfiller:    a.backfiller(tiers),
		}
	case store.KindPathway:
		r.Builder = &cache.KEGGBuilder{
			Pipeline: a.pipeline(a.fetcherFor(kind)),
			BaseURL:  a.cfg.Sources.KEGGBaseURL,
			Logger:   a.log,
		}
	}
	return r, nil
}

// openStore opens the store at dbPath when given, otherwise resolves the
// species store through bundled data and the shared cache.
func (a *app) openStore(ctx context.Context, dataset, speciesName, dbPath string) (*store.Store, error) {
	kind, err := store.ParseKind(dataset)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		return store.OpenReadOnly(dbPath, kind, store.WithLogger(a.log))
	}
	r, err := a.resolver(kind, nil)
	if err != nil {
		return nil, err
	}
	s, prov, err := r.Resolve(ctx, speciesName, true)
	if err != nil {
		return nil, err
	}
	a.log.Debug("store resolved", zap.String("path", s.Path()), zap.String("provenance", string(prov)))
	return s, nil
}

// writableStore opens dbPath, or the shared cache path for the species.
func (a *app) writableStore(ctx context.Context, kind store.Kind, speciesName, dbPath string) (*store.Store, error) {
	path := dbPath
	if path == "" {
		r, err := a.resolver(kind, nil)
		if err != nil {
			return nil, err
		}
		if path, err = r.CachePath(speciesName); err != nil {
			return nil, err
		}
	}
	return store.Open(ctx, path, kind, store.WithLogger(a.log))
}

func (a *app) geneSetPath(speciesName string) (string, error) {
	sp, err := species.Lookup(speciesName)
	if err != nil {
		return "", err
	}
	return filepath.Join(a.cfg.CacheDir, "msigdb", "msigdb_"+sp.Name+".db"), nil
}

func (a *app) openGeneSets(ctx context.Context, speciesName, dbPath string) (*genesets.Store, error) {
	path := dbPath
	if path == "" {
		var err error
		if path, err = a.geneSetPath(speciesName); err != nil {
			return nil, err
		}
	}
	return genesets.Open(ctx, path, a.log)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
