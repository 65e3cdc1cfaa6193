package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/species"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/spf13/cobra"
)

func newRewriteSymbolsCmd(a *app) *cobra.Command {
	var dbPath string
	c := &cobra.Command{
		Use:   "rewrite-symbols <species> <mapping.tsv>",
		Short: "Replace KEGG gene symbols using an id to symbol table",
		Long: "The mapping file holds one identifier and one symbol per line, tab-separated.\n" +
			"Lines starting with # are ignored. Only KEGG stores are rewritten.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := species.Lookup(args[0])
			if err != nil {
				return err
			}
			fh, err := os.Open(args[1])
			if err != nil {
				return apperrors.New("cli.rewrite", apperrors.ErrConfiguration, err)
			}
			defer func() { _ = fh.Close() }()
			mapping, err := readMapping(fh)
			if err != nil {
				return err
			}

			s, err := a.writableStore(cmd.Context(), store.KindPathway, sp.Name, dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			n, err := s.RewriteGeneSymbols(cmd.Context(), mapping)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "rewrote %d rows\n", n)
			return err
		},
	}
	c.Flags().StringVar(&dbPath, "db", "", "Store path (default: the shared cache entry)")
	return c
}

func readMapping(r io.Reader) (map[string]string, error) {
	out := map[string]string{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		from, to, ok := strings.Cut(text, "\t")
		if !ok || strings.TrimSpace(to) == "" {
			return nil, apperrors.Newf("cli.rewrite", apperrors.ErrParse, "line %d: want <id>\\t<symbol>", line)
		}
		out[strings.TrimSpace(from)] = strings.TrimSpace(to)
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.New("cli.rewrite", apperrors.ErrParse, err)
	}
	return out, nil
}
