package enrich

import (
	"bufio"
	"io"
	"strings"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
)

// namespace values in OBO files → GAF aspect letters
var oboNamespaces = map[string]string{
	"biological_process": api.AspectProcess,
	"molecular_function": api.AspectFunction,
	"cellular_component": api.AspectComponent,
}

// ParseOBO reads the [Term] stanzas of a GO OBO file. Obsolete terms are
// included and flagged.
func ParseOBO(r io.Reader) ([]api.Term, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		terms  []api.Term
		cur    *api.Term
		inTerm bool
	)
	flush := func() {
		if cur != nil && cur.ID != "" {
			terms = append(terms, *cur)
		}
		cur = nil
	}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") {
			flush()
			inTerm = line == "[Term]"
			if inTerm {
				cur = &api.Term{}
			}
			continue
		}
		if !inTerm || cur == nil {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch key {
		case "id":
			cur.ID = val
		case "name":
			cur.Name = val
		case "namespace":
			cur.Namespace = oboNamespaces[val]
		case "def":
			if strings.HasPrefix(val, `"`) {
				if end := strings.Index(val[1:], `"`); end >= 0 {
					val = val[1 : end+1]
				}
			}
			cur.Definition = val
		case "is_obsolete":
			cur.Obsolete = val == "true"
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, apperrors.New("enrich.parse_obo", apperrors.ErrParse, err)
	}
	return terms, nil
}

// TermNames reduces terms to the id→name map shipped as bundled data.
func TermNames(terms []api.Term, includeObsolete bool) map[string]string {
	out := make(map[string]string, len(terms))
	for _, t := range terms {
		if t.Name == "" || (t.Obsolete && !includeObsolete) {
			continue
		}
		out[t.ID] = t.Name
	}
	return out
}
