package cmd

import (
	"fmt"

	"github.com/guokai8/pathwaydb/internal/cache"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newCacheCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "cache",
		Short: "Manage the shared per-user cache of annotation stores",
	}
	c.AddCommand(newCachePathCmd(a), newCacheEnsureCmd(a), newCacheCopyCmd(a), newCachePublishCmd(a))
	return c
}

func (a *app) kindResolver(dataset string, evidence []string) (*cache.Resolver, error) {
	kind, err := store.ParseKind(dataset)
	if err != nil {
		return nil, err
	}
	return a.resolver(kind, evidence)
}

func newCachePathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path <go|kegg> <species>",
		Short: "Print the cache file location for a species",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.kindResolver(args[0], nil)
			if err != nil {
				return err
			}
			p, err := r.CachePath(args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), p)
			return err
		},
	}
}

func newCacheEnsureCmd(a *app) *cobra.Command {
	var (
		opts     cache.EnsureOptions
		evidence []string
		parallel int
	)
	c := &cobra.Command{
		Use:   "ensure <go|kegg> <species>...",
		Short: "Build or refresh cache entries",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.kindResolver(args[0], evidence)
			if err != nil {
				return err
			}
			names := args[1:]
			results := make([]cache.EnsureResult, len(names))

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(parallel, 1))
			for i, name := range names {
				g.Go(func() error {
					res, err := r.EnsureCached(ctx, name, opts)
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
					results[i] = res
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			for i, res := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d rows\t%s\n", names[i], res.Source, res.Rows, res.Path)
			}
			return nil
		},
	}
	c.Flags().BoolVar(&opts.ForceRefresh, "force", false, "Rebuild even when a cache entry exists")
	c.Flags().BoolVar(&opts.SkipEnrichment, "skip-enrichment", false, "Do not backfill names after ingesting")
	c.Flags().StringSliceVar(&evidence, "evidence", nil, "GO only: keep only these evidence codes")
	c.Flags().IntVar(&parallel, "parallel", 2, "Species built concurrently")
	return c
}

func newCacheCopyCmd(a *app) *cobra.Command {
	var noDownload bool
	c := &cobra.Command{
		Use:   "copy <go|kegg> <species> <dest>",
		Short: "Write an independent copy of a cached store",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.kindResolver(args[0], nil)
			if err != nil {
				return err
			}
			dst, err := r.MaterializeCopy(cmd.Context(), args[1], args[2], !noDownload)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), dst)
			return err
		},
	}
	c.Flags().BoolVar(&noDownload, "no-download", false, "Fail instead of building a missing cache entry")
	return c
}

func newCachePublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <go|kegg> <species>...",
		Short: "Upload cache entries to the configured mirror",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.kindResolver(args[0], nil)
			if err != nil {
				return err
			}
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(2)
			for _, name := range args[1:] {
				g.Go(func() error {
					if err := r.Publish(ctx, name); err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
					a.log.Info("published", zap.String("dataset", args[0]), zap.String("species", name))
					return nil
				})
			}
			return g.Wait()
		},
	}
}
