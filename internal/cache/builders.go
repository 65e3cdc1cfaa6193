package cache

import (
	"context"

	"github.com/guokai8/pathwaydb/internal/enrich"
	"github.com/guokai8/pathwaydb/internal/ingest"
	"github.com/guokai8/pathwaydb/internal/species"
	"github.com/guokai8/pathwaydb/internal/store"
	"go.uber.org/zap"
)

// GOBuilder ingests the GO annotation feed and backfills term names.
type GOBuilder struct {
	Pipeline *ingest.Pipeline
	// FeedURL maps a species name to its GAF URL.
	FeedURL       func(species string) string
	EvidenceCodes []string
	Backfiller    *enrich.Backfiller
}

func (b *GOBuilder) Ingest(ctx context.Context, sp species.Species, s *store.Store) error {
	_, err := b.Pipeline.Ingest(ctx, ingest.GAFFeed(b.FeedURL(sp.Name), sp.Name), s,
		ingest.Options{EvidenceCodes: b.EvidenceCodes})
	return err
}

func (b *GOBuilder) Enrich(ctx context.Context, _ species.Species, s *store.Store) error {
	if b.Backfiller == nil {
		return nil
	}
	_, err := b.Backfiller.Backfill(ctx, s)
	return err
}

// KEGGBuilder ingests the KEGG gene→pathway links with pathway names
// attached. Enrich backfills names the listing missed.
type KEGGBuilder struct {
	Pipeline *ingest.Pipeline
	BaseURL  string
	Logger   *zap.Logger
}

func (b *KEGGBuilder) Ingest(ctx context.Context, sp species.Species, s *store.Store) error {
	names, err := ingest.LoadPathwayNames(ctx, b.Pipeline.Fetcher, b.BaseURL, sp.KEGGCode)
	if err != nil {
		// names can be backfilled later
		b.logger().Warn("could not fetch pathway names", zap.String("org", sp.KEGGCode), zap.Error(err))
	}
	feed := ingest.KEGGLinkFeed(ingest.KEGGLinkURL(b.BaseURL, sp.KEGGCode), sp.KEGGCode, names)
	_, err = b.Pipeline.Ingest(ctx, feed, s, ingest.Options{})
	return err
}

func (b *KEGGBuilder) Enrich(ctx context.Context, sp species.Species, s *store.Store) error {
	bf := &enrich.Backfiller{
		Tiers:   []enrich.Tier{&enrich.KEGGNamesTier{Fetcher: b.Pipeline.Fetcher, BaseURL: b.BaseURL, Org: sp.KEGGCode}},
		Logger:  b.logger(),
		Metrics: b.Pipeline.Metrics,
	}
	_, err := bf.Backfill(ctx, s)
	return err
}

func (b *KEGGBuilder) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}
