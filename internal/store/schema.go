package store

import (
	"fmt"
	"strings"

	"github.com/guokai8/pathwaydb/internal/apperrors"
)

// Kind selects which annotation source a store holds.
type Kind int

const (
	KindTerm Kind = iota + 1
	KindPathway
)

func (k Kind) String() string {
	switch k {
	case KindTerm:
		return "go"
	case KindPathway:
		return "kegg"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts "go"/"term" and "kegg"/"pathway".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "go", "term":
		return KindTerm, nil
	case "kegg", "pathway":
		return KindPathway, nil
	}
	return 0, apperrors.Newf("store.kind", apperrors.ErrConfiguration, "unknown dataset %q", s)
}

// layout is the physical table description for one Kind. Both kinds share the
// same column set so scanning is uniform; evidence_code and aspect stay NULL
// for pathway rows.
type layout struct {
	table     string
	targetCol string
	nameCol   string
	// export column headers, in order
	frameCols []string
}

var layouts = map[Kind]layout{
	KindTerm: {
		table:     "go_annotations",
		targetCol: "go_id",
		nameCol:   "term_name",
		frameCols: []string{"GeneID", "TERM", "Aspect", "Evidence"},
	},
	KindPathway: {
		table:     "kegg_annotations",
		targetCol: "pathway_id",
		nameCol:   "pathway_name",
		frameCols: []string{"GeneID", "PATH", "Annot"},
	},
}

func layoutFor(k Kind) (layout, error) {
	l, ok := layouts[k]
	if !ok {
		return layout{}, apperrors.Newf("store.layout", apperrors.ErrConfiguration, "unsupported kind %v", k)
	}
	return l, nil
}

// columns returns the selected columns in scan order.
func (l layout) columns() string {
	return "gene_id, gene_symbol, " + l.targetCol + ", " + l.nameCol + ", evidence_code, aspect, organism"
}

func (l layout) ddl() string {
	t := l.table
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		gene_id TEXT NOT NULL,
		gene_symbol TEXT NOT NULL,
		%[2]s TEXT NOT NULL,
		%[3]s TEXT,
		evidence_code TEXT,
		aspect TEXT,
		organism TEXT,
		PRIMARY KEY (gene_id, %[2]s)
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_gene_id ON %[1]s(gene_id);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_gene_symbol ON %[1]s(gene_symbol);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_target ON %[1]s(%[2]s);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_organism ON %[1]s(organism);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_evidence ON %[1]s(evidence_code);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_aspect ON %[1]s(aspect);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`, t, l.targetCol, l.nameCol)
}
