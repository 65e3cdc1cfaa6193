package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/spf13/cobra"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		f      store.Filter
		dbPath string
		asJSON bool
	)
	c := &cobra.Command{
		Use:   "query <go|kegg> <species>",
		Short: "Filter annotations",
		Example: `  pathwaydb query go human --symbol TP53 --evidence IDA,IMP --namespace BP
  pathwaydb query kegg human --name-contains apoptosis --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd.Context(), args[0], args[1], dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			rows, err := s.Filter(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				if rows == nil {
					rows = []api.Annotation{}
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GENE_ID\tSYMBOL\tTARGET\tNAME\tEVIDENCE\tASPECT")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.GeneID, r.GeneSymbol, r.TargetID, r.TargetName, r.EvidenceCode, r.Aspect)
			}
			return tw.Flush()
		},
	}
	fl := c.Flags()
	fl.StringVar(&dbPath, "db", "", "Query this store file instead of the shared cache")
	fl.StringSliceVar(&f.GeneIDs, "gene-id", nil, "Gene identifiers")
	fl.StringSliceVar(&f.GeneSymbols, "symbol", nil, "Gene symbols")
	fl.StringSliceVar(&f.TargetIDs, "target", nil, "GO term or pathway ids")
	fl.StringSliceVar(&f.EvidenceCodes, "evidence", nil, "Evidence codes")
	fl.StringVar(&f.Aspect, "aspect", "", "GO aspect: P, F or C")
	fl.StringVar(&f.Namespace, "namespace", "", "GO namespace: BP, MF, CC or the full name")
	fl.StringVar(&f.Organism, "organism", "", "Organism recorded at ingest")
	fl.StringVar(&f.TargetName, "name-contains", "", "Case-insensitive substring of the term or pathway name")
	fl.IntVar(&f.Limit, "limit", 0, "Maximum rows (0 for all)")
	fl.BoolVar(&asJSON, "json", false, "Print JSON")
	return c
}
