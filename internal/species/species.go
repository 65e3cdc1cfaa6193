// Package species maps the supported organism names to their NCBI taxonomy
// ids and KEGG organism codes.
package species

import (
	"sort"
	"strings"

	"github.com/guokai8/pathwaydb/internal/apperrors"
)

// Species describes one supported organism.
type Species struct {
	Name     string
	TaxID    int
	KEGGCode string
}

var registry = map[string]Species{
	"human":     {Name: "human", TaxID: 9606, KEGGCode: "hsa"},
	"mouse":     {Name: "mouse", TaxID: 10090, KEGGCode: "mmu"},
	"rat":       {Name: "rat", TaxID: 10116, KEGGCode: "rno"},
	"zebrafish": {Name: "zebrafish", TaxID: 7955, KEGGCode: "dre"},
	"fly":       {Name: "fly", TaxID: 7227, KEGGCode: "dme"},
	"worm":      {Name: "worm", TaxID: 6239, KEGGCode: "cel"},
	"yeast":     {Name: "yeast", TaxID: 4932, KEGGCode: "sce"},
}

// Lookup resolves a species by name or KEGG code, case-insensitively.
func Lookup(name string) (Species, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if s, ok := registry[key]; ok {
		return s, nil
	}
	for _, s := range registry {
		if s.KEGGCode == key {
			return s, nil
		}
	}
	return Species{}, apperrors.Newf("species.lookup", apperrors.ErrConfiguration,
		"unsupported species %q (supported: %s)", name, strings.Join(Names(), ", "))
}

// Names returns the supported species names in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
