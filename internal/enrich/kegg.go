package enrich

import (
	"context"

	"github.com/guokai8/pathwaydb/internal/fetch"
	"github.com/guokai8/pathwaydb/internal/ingest"
)

// KEGGNamesTier resolves pathway names from the organism's pathway listing.
// One request serves every key.
type KEGGNamesTier struct {
	Fetcher   fetch.Fetcher
	BaseURL   string
	Org       string
	BatchSize int
}

func (t *KEGGNamesTier) Name() string { return "kegg" }

func (t *KEGGNamesTier) Resolve(ctx context.Context, keys []string, emit Emit) error {
	names, err := ingest.LoadPathwayNames(ctx, t.Fetcher, t.BaseURL, t.Org)
	if err != nil {
		return err
	}
	m := &MapTier{TierName: t.Name(), Names: names, BatchSize: t.BatchSize}
	return m.Resolve(ctx, keys, emit)
}
