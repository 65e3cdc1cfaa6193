package cmd

import (
	"io"
	"os"

	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		dbPath, format, output string
		limit                  int
	)
	c := &cobra.Command{
		Use:   "export <go|kegg> <species>",
		Short: "Export a store as a table, records, columns or gene sets",
		Long: "Formats:\n" +
			"  csv, tsv    GeneID, TERM, Aspect, Evidence (GO) or GeneID, PATH, Annot (KEGG) table\n" +
			"  records     JSON list of row objects\n" +
			"  columns     JSON object of column name to values\n" +
			"  gene-sets   JSON object of target id to member gene symbols",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx, args[0], args[1], dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			w := cmd.OutOrStdout()
			if output != "" {
				fh, err := os.Create(output)
				if err != nil {
					return apperrors.Storage("cli.export", err)
				}
				defer func() { _ = fh.Close() }()
				w = fh
			}
			return exportStore(cmd, s, format, limit, w)
		},
	}
	c.Flags().StringVar(&dbPath, "db", "", "Export this store file instead of the shared cache")
	c.Flags().StringVarP(&format, "format", "f", "tsv", "csv, tsv, records, columns or gene-sets")
	c.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	c.Flags().IntVar(&limit, "limit", 0, "Maximum rows (0 for all)")
	return c
}

func exportStore(cmd *cobra.Command, s *store.Store, format string, limit int, w io.Writer) error {
	ctx := cmd.Context()
	switch format {
	case "csv", "tsv":
		f, err := s.ToDataFrame(ctx, limit)
		if err != nil {
			return err
		}
		sep := ','
		if format == "tsv" {
			sep = '\t'
		}
		return f.WriteCSV(w, sep)
	case "records":
		recs, err := s.ToRecords(ctx, limit)
		if err != nil {
			return err
		}
		return writeJSON(w, recs)
	case "columns":
		cols, err := s.ToDict(ctx, limit)
		if err != nil {
			return err
		}
		return writeJSON(w, cols)
	case "gene-sets":
		sets, err := s.ToGeneSets(ctx)
		if err != nil {
			return err
		}
		return writeJSON(w, sets)
	}
	return apperrors.Newf("cli.export", apperrors.ErrConfiguration, "unknown export format %q", format)
}
