package api

// Annotation is one gene↔target association. Target is a GO term for term
// stores and a KEGG pathway for pathway stores.
type Annotation struct {
	// GeneID is the source-native gene identifier (e.g. "hsa:7157", "UniProtKB:P04637").
	GeneID string `json:"gene_id"`
	// GeneSymbol is the human-readable symbol (e.g. "TP53").
	GeneSymbol string `json:"gene_symbol"`
	// TargetID is the pathway or term identifier.
	TargetID string `json:"target_id"`
	// TargetName is filled lazily by enrichment. Empty means not yet known.
	TargetName string `json:"target_name,omitempty"`
	// EvidenceCode and Aspect are only set for term annotations.
	EvidenceCode string `json:"evidence_code,omitempty"`
	Aspect       string `json:"aspect,omitempty"`
	// Organism is a species name or KEGG organism code.
	Organism string `json:"organism,omitempty"`
}

// Key returns the natural key of the annotation.
func (a Annotation) Key() [2]string {
	return [2]string{a.GeneID, a.TargetID}
}

// GeneSet is an MSigDB-style named gene set.
type GeneSet struct {
	ID          string   `json:"gene_set_id"`
	Name        string   `json:"gene_set_name"`
	Collection  string   `json:"collection"`
	Description string   `json:"description,omitempty"`
	Genes       []string `json:"genes"`
	Organism    string   `json:"organism,omitempty"`
}

// Term is a single ontology term.
type Term struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Namespace  string `json:"namespace,omitempty"`
	Definition string `json:"definition,omitempty"`
	Obsolete   bool   `json:"obsolete,omitempty"`
}

// GO aspects as stored in GAF column 9.
const (
	AspectProcess   = "P"
	AspectFunction  = "F"
	AspectComponent = "C"
)

// Evidence code groups.
var (
	ExperimentalEvidence  = []string{"EXP", "IDA", "IPI", "IMP", "IGI", "IEP", "HTP", "HDA", "HMP", "HGI", "HEP"}
	CuratedEvidence       = []string{"ISS", "ISO", "ISA", "ISM", "IGC", "IBA", "IBD", "IKR", "IRD", "RCA", "TAS", "NAS", "IC"}
	ComputationalEvidence = []string{"IEA"}
)

// HighQualityEvidence is experimental plus curated evidence, i.e. everything
// except electronic annotation and ND.
func HighQualityEvidence() []string {
	out := make([]string, 0, len(ExperimentalEvidence)+len(CuratedEvidence))
	out = append(out, ExperimentalEvidence...)
	return append(out, CuratedEvidence...)
}
