package cmd

import (
	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/enrich"
	"github.com/spf13/cobra"
)

func (a *app) termClient() (*enrich.TermClient, error) {
	return enrich.NewTermClient(a.quickGO(), 1024)
}

func newTermCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "term <GO id>...",
		Short: "Look up GO terms",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := a.termClient()
			if err != nil {
				return err
			}
			terms := make([]api.Term, 0, len(args))
			for _, id := range args {
				t, err := tc.GetTerm(cmd.Context(), id)
				if err != nil {
					return err
				}
				terms = append(terms, t)
			}
			if len(terms) == 1 {
				return writeJSON(cmd.OutOrStdout(), terms[0])
			}
			return writeJSON(cmd.OutOrStdout(), terms)
		},
	}
}
