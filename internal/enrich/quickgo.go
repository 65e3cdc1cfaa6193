package enrich

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/fetch"
	"github.com/guokai8/pathwaydb/internal/metrics"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"
)

const (
	DefaultQuickGOURL = "https://www.ebi.ac.uk/QuickGO/services/ontology/go/terms"
	DefaultBatchSize  = 100
	DefaultPause      = 200 * time.Millisecond
)

var resultsPath = jp.MustParseString("$.results[*]")

// QuickGOTier looks up GO term names from the QuickGO REST service in
// fixed-size batches with a pause between requests, DefaultPause when unset.
// A failed batch is logged and skipped.
type QuickGOTier struct {
	Fetcher   fetch.Fetcher
	BaseURL   string
	BatchSize int
	Pause     time.Duration
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func (t *QuickGOTier) Name() string { return "quickgo" }

func (t *QuickGOTier) Resolve(ctx context.Context, keys []string, emit Emit) error {
	size := t.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	pause := t.Pause
	if pause <= 0 {
		pause = DefaultPause
	}
	log := t.logger()
	for i, batch := range batches(keys, size) {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
		}
		terms, err := t.lookup(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.Metrics.BatchFailed(t.Name())
			log.Warn("term batch failed, skipping", zap.Int("batch", i), zap.Int("size", len(batch)), zap.Error(err))
			continue
		}
		found := make(map[string]string, len(terms))
		for _, term := range terms {
			if term.Name != "" {
				found[term.ID] = term.Name
			}
		}
		if len(found) == 0 {
			continue
		}
		if err := emit(found); err != nil {
			return err
		}
	}
	return nil
}

// lookup fetches full term records for ids.
func (t *QuickGOTier) lookup(ctx context.Context, ids []string) ([]api.Term, error) {
	base := t.BaseURL
	if base == "" {
		base = DefaultQuickGOURL
	}
	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.PathEscape(id)
	}
	body, err := t.Fetcher.Get(ctx, strings.TrimRight(base, "/")+"/"+strings.Join(escaped, ","))
	if err != nil {
		return nil, err
	}
	return parseQuickGOTerms(body)
}

func parseQuickGOTerms(body []byte) ([]api.Term, error) {
	doc, err := oj.Parse(body)
	if err != nil {
		return nil, apperrors.New("quickgo.parse", apperrors.ErrParse, err)
	}
	var terms []api.Term
	for _, r := range resultsPath.Get(doc) {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		term := api.Term{
			ID:        str(m["id"]),
			Name:      str(m["name"]),
			Namespace: str(m["aspect"]),
		}
		if def, ok := m["definition"].(map[string]any); ok {
			term.Definition = str(def["text"])
		}
		if obs, ok := m["isObsolete"].(bool); ok {
			term.Obsolete = obs
		}
		if term.ID == "" {
			continue
		}
		terms = append(terms, term)
	}
	return terms, nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (t *QuickGOTier) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}
