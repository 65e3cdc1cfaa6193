package genesets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
)

// maxGMTLine caps a single GMT record.
const maxGMTLine = 8 * 1024 * 1024

// ParseGMT reads gene sets in GMT format: name, description, then member
// symbols, tab-separated. Lines with fewer than three fields are skipped. An
// oversized line is an ErrParse; other read failures are an ErrNetwork.
func ParseGMT(r io.Reader) ([]api.GeneSet, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxGMTLine)
	var sets []api.GeneSet
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}
		gs := api.GeneSet{ID: parts[0], Name: parts[0], Description: parts[1]}
		seen := make(map[string]struct{}, len(parts)-2)
		for _, g := range parts[2:] {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			gs.Genes = append(gs.Genes, g)
		}
		if len(gs.Genes) > 0 {
			sets = append(sets, gs)
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, apperrors.New("gmt.parse", apperrors.ErrParse, err)
		}
		return nil, apperrors.New("gmt.parse", apperrors.ErrNetwork, err)
	}
	return sets, nil
}

// WriteGMT writes sets in GMT format.
func WriteGMT(w io.Writer, sets []api.GeneSet) error {
	bw := bufio.NewWriter(w)
	for _, gs := range sets {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\n", gs.ID, gs.Description, strings.Join(gs.Genes, "\t")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Collections lists the MSigDB collection codes.
var Collections = []string{"H", "C1", "C2", "C3", "C4", "C5", "C6", "C7", "C8"}

// GMTURL builds the symbols GMT download URL for a collection.
func GMTURL(base, version, collection, species string) (string, error) {
	var code string
	switch strings.ToLower(species) {
	case "human":
		code = "Hs"
	case "mouse":
		code = "Mm"
	default:
		return "", apperrors.Newf("genesets.url", apperrors.ErrConfiguration,
			"MSigDB only covers human and mouse, got %q", species)
	}
	return fmt.Sprintf("%s/%s.%s/%s.all.v%s.%s.symbols.gmt",
		strings.TrimRight(base, "/"), version, code, strings.ToLower(collection), version, code), nil
}
