package enrich

import (
	"context"
	"fmt"

	"github.com/guokai8/pathwaydb/internal/metrics"
	"github.com/guokai8/pathwaydb/internal/store"
	"go.uber.org/zap"
)

// Result summarizes one backfill pass.
type Result struct {
	// Missing is the number of distinct targets without a name at the start.
	Missing int
	// ResolvedBy counts keys resolved per tier name.
	ResolvedBy map[string]int
	// Updated is the number of annotation rows that received a name.
	Updated int64
	// Unresolved keys remain null and are retried on the next run.
	Unresolved []string
}

// Backfiller fills missing target names from an ordered list of tiers.
type Backfiller struct {
	Tiers   []Tier
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Backfill resolves names for every target lacking one. Each tier sees only
// keys no earlier tier resolved. Every emitted batch is committed before the
// next lookup, so an interrupted run keeps its progress.
//
// A tier that fails outright is logged and the cascade moves on; only
// storage errors and cancellation abort the run.
func (b *Backfiller) Backfill(ctx context.Context, s *store.Store) (Result, error) {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}
	res := Result{ResolvedBy: map[string]int{}}

	missing, err := s.MissingTargetIDs(ctx)
	if err != nil {
		return res, err
	}
	res.Missing = len(missing)
	unresolved := make(map[string]struct{}, len(missing))
	for _, k := range missing {
		unresolved[k] = struct{}{}
	}
	log.Info("backfill started", zap.Int("missing", len(missing)), zap.Int("tiers", len(b.Tiers)))

	for _, tier := range b.Tiers {
		if len(unresolved) == 0 {
			break
		}
		name := tier.Name()
		keys := sortedKeys(unresolved)
		var storeErr error
		emit := func(found map[string]string) error {
			batch := make(map[string]string, len(found))
			for k, v := range found {
				if _, ok := unresolved[k]; ok && v != "" {
					batch[k] = v
				}
			}
			n, err := s.SetTargetNames(ctx, batch)
			if err != nil {
				storeErr = err
				return err
			}
			for k := range batch {
				delete(unresolved, k)
			}
			res.Updated += n
			res.ResolvedBy[name] += len(batch)
			b.Metrics.KeysResolved(name, len(batch))
			return nil
		}

		err := tier.Resolve(ctx, keys, emit)
		switch {
		case storeErr != nil:
			return b.finish(res, unresolved), fmt.Errorf("backfill %s: %w", name, storeErr)
		case ctx.Err() != nil:
			return b.finish(res, unresolved), ctx.Err()
		case err != nil:
			b.Metrics.BatchFailed(name)
			log.Warn("name tier failed, continuing", zap.String("tier", name), zap.Error(err))
		}
		log.Info("tier finished", zap.String("tier", name),
			zap.Int("resolved", res.ResolvedBy[name]), zap.Int("remaining", len(unresolved)))
	}

	res = b.finish(res, unresolved)
	log.Info("backfill finished", zap.Int64("updated_rows", res.Updated), zap.Int("unresolved", len(res.Unresolved)))
	return res, nil
}

func (b *Backfiller) finish(res Result, unresolved map[string]struct{}) Result {
	res.Unresolved = sortedKeys(unresolved)
	return res
}
