package cmd

import (
	"context"

	"github.com/guokai8/pathwaydb/internal/mcpserver"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		geneSetSpecies string
		noTerms        bool
	)
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve annotation queries as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps := mcpserver.Deps{
				Open: func(ctx context.Context, dataset, speciesName string) (*store.Store, error) {
					return a.openStore(ctx, dataset, speciesName, "")
				},
				Logger: a.log,
			}
			if geneSetSpecies != "" {
				gs, err := a.openGeneSets(cmd.Context(), geneSetSpecies, "")
				if err != nil {
					return err
				}
				defer func() { _ = gs.Close() }()
				deps.GeneSets = gs
			}
			if !noTerms {
				tc, err := a.termClient()
				if err != nil {
					return err
				}
				deps.Terms = tc
			}

			a.log.Info("serving MCP on stdio", zap.String("version", version))
			return mcpserver.New("pathwaydb", version, deps).ServeStdio()
		},
	}
	c.Flags().StringVar(&geneSetSpecies, "gene-sets", "", "Expose the gene set store of this species (human or mouse)")
	c.Flags().BoolVar(&noTerms, "no-terms", false, "Do not register the remote get_term tool")
	return c
}
