package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/ingest"
	"github.com/guokai8/pathwaydb/internal/species"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type ingestFlags struct {
	dbPath      string
	file        string
	batchSize   int
	evidence    []string
	highQuality bool
	namesFile   string
}

func newIngestCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "ingest",
		Short: "Download an annotation feed and load it into a store",
	}

	var gf ingestFlags
	goCmd := &cobra.Command{
		Use:   "go <species>",
		Short: "Load the GO annotation (GAF) feed for a species",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := species.Lookup(args[0])
			if err != nil {
				return err
			}
			opts := ingest.Options{EvidenceCodes: gf.evidence}
			if gf.highQuality {
				opts.EvidenceCodes = api.HighQualityEvidence()
			}
			return a.runIngest(cmd, store.KindTerm, sp, ingest.GAFFeed(a.cfg.GAFURL(sp.Name), sp.Name), gf, opts)
		},
	}
	addIngestFlags(goCmd, &gf)
	goCmd.Flags().StringSliceVar(&gf.evidence, "evidence", nil, "Keep only these evidence codes (repeatable or comma-separated)")
	goCmd.Flags().BoolVar(&gf.highQuality, "high-quality", false, "Keep experimental and curated evidence only")

	var kf ingestFlags
	keggCmd := &cobra.Command{
		Use:   "kegg <species>",
		Short: "Load the KEGG gene to pathway links for a species",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := species.Lookup(args[0])
			if err != nil {
				return err
			}
			names, err := a.pathwayNames(cmd, sp, kf)
			if err != nil {
				a.log.Warn("pathway names unavailable, run backfill later", zap.Error(err))
			}
			feed := ingest.KEGGLinkFeed(ingest.KEGGLinkURL(a.cfg.Sources.KEGGBaseURL, sp.KEGGCode), sp.KEGGCode, names)
			return a.runIngest(cmd, store.KindPathway, sp, feed, kf, ingest.Options{})
		},
	}
	addIngestFlags(keggCmd, &kf)
	keggCmd.Flags().StringVar(&kf.namesFile, "names-file", "", "Local pathway list (KEGG /list/pathway format) instead of fetching one")

	c.AddCommand(goCmd, keggCmd)
	return c
}

func addIngestFlags(c *cobra.Command, f *ingestFlags) {
	c.Flags().StringVar(&f.dbPath, "db", "", "Store path (default: the shared cache entry)")
	c.Flags().StringVar(&f.file, "file", "", "Read the feed from a local file instead of downloading it")
	c.Flags().IntVar(&f.batchSize, "batch-size", 0, "Rows per transaction (default from config)")
}

func (a *app) pathwayNames(cmd *cobra.Command, sp species.Species, f ingestFlags) (map[string]string, error) {
	if f.namesFile != "" {
		fh, err := os.Open(f.namesFile)
		if err != nil {
			return nil, apperrors.New("cli.ingest", apperrors.ErrConfiguration, err)
		}
		defer func() { _ = fh.Close() }()
		return ingest.ParsePathwayList(fh)
	}
	if f.file != "" {
		return nil, nil
	}
	return ingest.LoadPathwayNames(cmd.Context(), a.fetcherFor(store.KindPathway), a.cfg.Sources.KEGGBaseURL, sp.KEGGCode)
}

func (a *app) runIngest(cmd *cobra.Command, kind store.Kind, sp species.Species, feed ingest.Feed, f ingestFlags, opts ingest.Options) error {
	ctx := cmd.Context()
	s, err := a.writableStore(ctx, kind, sp.Name, f.dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	p := a.pipeline(a.fetcherFor(kind))
	if f.batchSize > 0 {
		p.BatchSize = f.batchSize
	}

	var res ingest.Result
	if f.file != "" {
		fh, err := os.Open(f.file)
		if err != nil {
			return apperrors.New("cli.ingest", apperrors.ErrConfiguration, err)
		}
		defer func() { _ = fh.Close() }()
		res, err = p.IngestReader(ctx, feed, fh, s, opts)
		if err != nil {
			return err
		}
	} else if res, err = p.Ingest(ctx, feed, s, opts); err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(),
		"%s: inserted %d rows from %d lines (%d malformed, %d filtered) into %s in %s\n",
		feed.Dataset, res.Inserted, res.Lines, res.Malformed, res.Filtered, s.Path(), res.Elapsed.Round(time.Millisecond))
	return err
}
