package cmd

import (
	"fmt"
	"os"

	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/enrich"
	"github.com/spf13/cobra"
)

func newPrepareCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "prepare",
		Short: "Build files shipped alongside the stores",
	}

	var (
		output          string
		includeObsolete bool
	)
	termNames := &cobra.Command{
		Use:   "term-names <go.obo>",
		Short: "Write the GO id to name map used by backfill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fh, err := os.Open(args[0])
			if err != nil {
				return apperrors.New("cli.prepare", apperrors.ErrConfiguration, err)
			}
			defer func() { _ = fh.Close() }()

			terms, err := enrich.ParseOBO(fh)
			if err != nil {
				return err
			}
			names := enrich.TermNames(terms, includeObsolete)
			dst := output
			if dst == "" {
				dst = a.cfg.Enrich.TermNamesFile
			}
			if dst == "" {
				return apperrors.Newf("cli.prepare", apperrors.ErrConfiguration, "no output path: pass -o or set PATHWAYDB_TERM_NAMES_FILE")
			}
			if err := enrich.SaveNameMap(dst, names); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d term names to %s\n", len(names), dst)
			return err
		},
	}
	termNames.Flags().StringVarP(&output, "output", "o", "", "Output JSON file (default: the configured term names file)")
	termNames.Flags().BoolVar(&includeObsolete, "include-obsolete", false, "Keep obsolete terms")

	c.AddCommand(termNames)
	return c
}
