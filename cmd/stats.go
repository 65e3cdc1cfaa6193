package cmd

import (
	"github.com/guokai8/pathwaydb/internal/ingest"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/spf13/cobra"
)

type statsReport struct {
	Path string `json:"path"`
	store.Stats
	Metadata map[string]string `json:"metadata,omitempty"`
}

func newStatsCmd(a *app) *cobra.Command {
	var dbPath string
	c := &cobra.Command{
		Use:   "stats <go|kegg> <species>",
		Short: "Summarize a store and its last ingestion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx, args[0], args[1], dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			st, err := s.Stats(ctx)
			if err != nil {
				return err
			}
			rep := statsReport{Path: s.Path(), Stats: st, Metadata: map[string]string{}}
			for _, key := range []string{ingest.MetaDataset, ingest.MetaOrganism, ingest.MetaSourceURL, ingest.MetaRunID, ingest.MetaIngestedAt} {
				v, ok, err := s.Metadata(ctx, key)
				if err != nil {
					return err
				}
				if ok {
					rep.Metadata[key] = v
				}
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}
	c.Flags().StringVar(&dbPath, "db", "", "Inspect this store file instead of the shared cache")
	return c
}
