package cmd

import (
	"fmt"
	"sort"

	"github.com/guokai8/pathwaydb/internal/species"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/spf13/cobra"
)

func newBackfillCmd(a *app) *cobra.Command {
	var (
		dbPath  string
		offline bool
	)
	c := &cobra.Command{
		Use:   "backfill <go|kegg> <species>",
		Short: "Fill in missing term or pathway names",
		Long: "Resolves names for targets that have none, trying the bundled name map\n" +
			"first and the remote services after. Progress is committed per batch, so\n" +
			"an interrupted run can simply be repeated.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := store.ParseKind(args[0])
			if err != nil {
				return err
			}
			sp, err := species.Lookup(args[1])
			if err != nil {
				return err
			}
			tiers, err := a.tiers(kind, sp, offline)
			if err != nil {
				return err
			}
			s, err := a.writableStore(cmd.Context(), kind, sp.Name, dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			res, err := a.backfiller(tiers).Backfill(cmd.Context(), s)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "missing %d, updated %d rows, unresolved %d\n", res.Missing, res.Updated, len(res.Unresolved))
			tierNames := make([]string, 0, len(res.ResolvedBy))
			for name := range res.ResolvedBy {
				tierNames = append(tierNames, name)
			}
			sort.Strings(tierNames)
			for _, name := range tierNames {
				fmt.Fprintf(out, "  %-10s %d\n", name, res.ResolvedBy[name])
			}
			return nil
		},
	}
	c.Flags().StringVar(&dbPath, "db", "", "Store path (default: the shared cache entry)")
	c.Flags().BoolVar(&offline, "offline", false, "Use only the bundled name map")
	return c
}
