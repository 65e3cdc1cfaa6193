package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/genesets"
	"github.com/guokai8/pathwaydb/internal/species"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newGeneSetsCmd(a *app) *cobra.Command {
	var dbPath string
	c := &cobra.Command{
		Use:   "genesets",
		Short: "Download and query MSigDB gene set collections",
	}
	c.PersistentFlags().StringVar(&dbPath, "db", "", "Gene set store path (default: the shared cache entry)")
	c.AddCommand(
		newGeneSetsDownloadCmd(a, &dbPath),
		newGeneSetsQueryCmd(a, &dbPath),
		newGeneSetsExportCmd(a, &dbPath),
		newGeneSetsStatsCmd(a, &dbPath),
	)
	return c
}

func newGeneSetsDownloadCmd(a *app, dbPath *string) *cobra.Command {
	var (
		collections []string
		force       bool
		file        string
	)
	c := &cobra.Command{
		Use:   "download <human|mouse>",
		Short: "Fetch gene set collections (H, C1..C8) into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sp, err := species.Lookup(args[0])
			if err != nil {
				return err
			}
			gs, err := a.openGeneSets(ctx, sp.Name, *dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = gs.Close() }()

			if file != "" {
				if len(collections) != 1 {
					return apperrors.Newf("cli.genesets", apperrors.ErrConfiguration, "--file needs exactly one --collection")
				}
				fh, err := os.Open(file)
				if err != nil {
					return apperrors.New("cli.genesets", apperrors.ErrConfiguration, err)
				}
				defer func() { _ = fh.Close() }()
				sets, err := genesets.ParseGMT(fh)
				if err != nil {
					return err
				}
				coll := strings.ToUpper(collections[0])
				n, err := gs.Replace(ctx, coll, sp.Name, sets)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d gene sets\n", coll, n)
				return err
			}

			f := a.fetcher(a.cfg.HTTP.MinInterval)
			for _, coll := range collections {
				url, err := genesets.GMTURL(a.cfg.Sources.MSigDBURL, a.cfg.Sources.MSigDBVersion, coll, sp.Name)
				if err != nil {
					return err
				}
				n, err := gs.DownloadCollection(ctx, f, url, coll, sp.Name, force)
				if err != nil {
					return err
				}
				a.log.Debug("collection ready", zap.String("collection", coll), zap.String("url", url))
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d gene sets\n", strings.ToUpper(coll), n)
			}
			return nil
		},
	}
	c.Flags().StringSliceVarP(&collections, "collection", "c", []string{"H"}, "Collections to download")
	c.Flags().BoolVar(&force, "force", false, "Re-download collections already present")
	c.Flags().StringVar(&file, "file", "", "Load a local GMT file as the single given collection")
	return c
}

func newGeneSetsQueryCmd(a *app, dbPath *string) *cobra.Command {
	var (
		genes      []string
		name       string
		collection string
		minOverlap int
		asJSON     bool
	)
	c := &cobra.Command{
		Use:   "query <human|mouse>",
		Short: "Find gene sets by member genes or by name",
		Example: `  pathwaydb genesets query human --gene TP53,MDM2 --min-overlap 2
  pathwaydb genesets query human --name '%APOPTOSIS%' -c H`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			gs, err := a.openGeneSets(ctx, args[0], *dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = gs.Close() }()

			out := cmd.OutOrStdout()
			if name != "" || len(genes) == 0 {
				sets, err := gs.Filter(ctx, genesets.Filter{NamePattern: name, Collection: collection})
				if err != nil {
					return err
				}
				if asJSON {
					if sets == nil {
						sets = []api.GeneSet{}
					}
					return writeJSON(out, sets)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "GENE_SET\tCOLLECTION\tSIZE")
				for _, s := range sets {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", s.ID, s.Collection, len(s.Genes))
				}
				return tw.Flush()
			}

			hits, err := gs.QueryByGene(ctx, genes, collection, minOverlap)
			if err != nil {
				return err
			}
			if asJSON {
				if hits == nil {
					hits = []genesets.Overlap{}
				}
				return writeJSON(out, hits)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GENE_SET\tCOLLECTION\tOVERLAP\tSIZE\tGENES")
			for _, h := range hits {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", h.ID, h.Collection, h.OverlapCount, h.TotalGenes, strings.Join(h.OverlapGenes, ","))
			}
			return tw.Flush()
		},
	}
	c.Flags().StringSliceVarP(&genes, "gene", "g", nil, "Gene symbols")
	c.Flags().StringVar(&name, "name", "", "Case-insensitive name pattern (SQL LIKE)")
	c.Flags().StringVarP(&collection, "collection", "c", "", "Restrict to one collection")
	c.Flags().IntVar(&minOverlap, "min-overlap", 1, "Minimum shared genes")
	c.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return c
}

func newGeneSetsExportCmd(a *app, dbPath *string) *cobra.Command {
	var collection, format string
	c := &cobra.Command{
		Use:   "export <human|mouse>",
		Short: "Export gene sets as GMT, JSON or a membership table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			gs, err := a.openGeneSets(ctx, args[0], *dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = gs.Close() }()

			out := cmd.OutOrStdout()
			switch format {
			case "gmt":
				sets, err := gs.Filter(ctx, genesets.Filter{Collection: collection})
				if err != nil {
					return err
				}
				return genesets.WriteGMT(out, sets)
			case "json":
				m, err := gs.Export(ctx, collection)
				if err != nil {
					return err
				}
				return writeJSON(out, m)
			case "tsv":
				f, err := gs.ToDataFrame(ctx, collection, 0)
				if err != nil {
					return err
				}
				return f.WriteCSV(out, '\t')
			}
			return apperrors.Newf("cli.genesets", apperrors.ErrConfiguration, "unknown export format %q", format)
		},
	}
	c.Flags().StringVarP(&collection, "collection", "c", "", "Restrict to one collection")
	c.Flags().StringVarP(&format, "format", "f", "gmt", "gmt, json or tsv")
	return c
}

func newGeneSetsStatsCmd(a *app, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <human|mouse>",
		Short: "Count gene sets per collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gs, err := a.openGeneSets(cmd.Context(), args[0], *dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = gs.Close() }()
			st, err := gs.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st)
		},
	}
}
