package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/fetch"
	"github.com/guokai8/pathwaydb/internal/metrics"
	"github.com/guokai8/pathwaydb/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize     = 100000
	DefaultProgressEvery = 100000
)

// Metadata keys written after each run.
const (
	MetaDataset    = "dataset"
	MetaOrganism   = "organism"
	MetaSourceURL  = "source_url"
	MetaRunID      = "last_run_id"
	MetaIngestedAt = "last_ingested_at"
)

// Progress is a periodic snapshot of a running ingestion.
type Progress struct {
	Dataset  string
	Lines    int
	Parsed   int
	Inserted int64
}

// Options tune one ingestion run.
type Options struct {
	// EvidenceCodes keeps only records with one of these codes. Empty keeps all.
	EvidenceCodes []string
}

// Result summarizes one ingestion run.
type Result struct {
	RunID     string
	Lines     int
	Comments  int
	Malformed int
	Filtered  int
	// Parsed counts records handed to the store, including ones whose natural
	// key already existed.
	Parsed   int
	Inserted int64
	Elapsed  time.Duration
}

// Pipeline streams feeds into annotation stores.
type Pipeline struct {
	Fetcher       fetch.Fetcher
	BatchSize     int
	ProgressEvery int
	// Progress, if set, is called every ProgressEvery lines.
	Progress func(Progress)
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Ingest fetches feed.URL and loads it into s. A transport failure aborts the
// run; batches committed before the failure remain in the store.
func (p *Pipeline) Ingest(ctx context.Context, feed Feed, s *store.Store, opts Options) (Result, error) {
	if p.Fetcher == nil {
		return Result{}, apperrors.Newf("ingest", apperrors.ErrConfiguration, "no fetcher configured")
	}
	body, err := p.Fetcher.Open(ctx, feed.URL)
	if err != nil {
		return Result{}, fmt.Errorf("open %s feed: %w", feed.Dataset, err)
	}
	defer func() { _ = body.Close() }()
	return p.IngestReader(ctx, feed, body, s, opts)
}

// IngestReader loads an already opened feed, gzip-compressed or plain.
func (p *Pipeline) IngestReader(ctx context.Context, feed Feed, r io.Reader, s *store.Store, opts Options) (Result, error) {
	log := p.logger().With(zap.String("dataset", feed.Dataset))
	res := Result{RunID: uuid.NewString()}
	start := time.Now()

	plain, closeFn, err := decompress(r)
	if err != nil {
		return res, err
	}
	defer func() { _ = closeFn() }()

	batch := p.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	every := p.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	var keep map[string]struct{}
	if len(opts.EvidenceCodes) > 0 {
		keep = make(map[string]struct{}, len(opts.EvidenceCodes))
		for _, c := range opts.EvidenceCodes {
			keep[c] = struct{}{}
		}
	}

	w, err := s.NewWriter(ctx, batch)
	if err != nil {
		return res, err
	}

	log.Info("ingestion started", zap.String("url", feed.URL), zap.String("run_id", res.RunID))
	sc := newLineScanner(plain)
	var runErr error
	for sc.Scan() {
		res.Lines++
		if res.Lines%1000 == 0 {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}
		}
		if res.Lines%every == 0 {
			p.report(log, feed.Dataset, res, w.Inserted())
		}

		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		if feed.CommentPrefix != "" && strings.HasPrefix(line, feed.CommentPrefix) {
			res.Comments++
			continue
		}
		a, err := feed.Parse(line)
		if err != nil {
			res.Malformed++
			if res.Malformed <= 5 {
				log.Debug("skipping malformed line", zap.Int("line", res.Lines), zap.Error(err))
			}
			continue
		}
		if keep != nil {
			if _, ok := keep[a.EvidenceCode]; !ok {
				res.Filtered++
				continue
			}
		}
		if err := w.Add(ctx, a); err != nil {
			runErr = err
			break
		}
		res.Parsed++
	}
	if runErr == nil {
		if err := sc.Err(); err != nil {
			runErr = apperrors.New("ingest.read", apperrors.ErrNetwork, err)
		}
	}

	// pending rows are complete records, so they are kept on abort too
	closeErr := w.Close()
	res.Inserted = w.Inserted()
	res.Elapsed = time.Since(start)
	p.record(feed.Dataset, res)

	if runErr == nil && closeErr != nil {
		runErr = closeErr
	}
	if runErr != nil {
		log.Error("ingestion aborted", zap.Int("lines", res.Lines),
			zap.Int64("inserted", res.Inserted), zap.Error(runErr))
		return res, runErr
	}

	if err := writeRunMetadata(ctx, s, feed, res); err != nil {
		return res, err
	}
	log.Info("ingestion finished",
		zap.Int("lines", res.Lines),
		zap.Int("parsed", res.Parsed),
		zap.Int64("inserted", res.Inserted),
		zap.Int("malformed", res.Malformed),
		zap.Int("filtered", res.Filtered),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func writeRunMetadata(ctx context.Context, s *store.Store, feed Feed, res Result) error {
	kv := [][2]string{
		{MetaDataset, feed.Dataset},
		{MetaOrganism, feed.Organism},
		{MetaSourceURL, feed.URL},
		{MetaRunID, res.RunID},
		{MetaIngestedAt, time.Now().UTC().Format(time.RFC3339)},
	}
	var errs []error
	for _, e := range kv {
		if e[1] == "" {
			continue
		}
		errs = append(errs, s.SetMetadata(ctx, e[0], e[1]))
	}
	return errors.Join(errs...)
}

func (p *Pipeline) report(log *zap.Logger, dataset string, res Result, inserted int64) {
	log.Info("ingestion progress", zap.Int("lines", res.Lines), zap.Int("parsed", res.Parsed), zap.Int64("inserted", inserted))
	if p.Progress != nil {
		p.Progress(Progress{Dataset: dataset, Lines: res.Lines, Parsed: res.Parsed, Inserted: inserted})
	}
}

func (p *Pipeline) record(dataset string, res Result) {
	p.Metrics.LinesRead(dataset, res.Lines)
	p.Metrics.RowsInserted(dataset, res.Inserted)
	p.Metrics.LinesSkipped(dataset, "comment", res.Comments)
	p.Metrics.LinesSkipped(dataset, "malformed", res.Malformed)
	p.Metrics.LinesSkipped(dataset, "filtered", res.Filtered)
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
