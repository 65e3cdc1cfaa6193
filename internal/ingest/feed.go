package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/klauspost/compress/gzip"
)

// Feed describes one line-oriented annotation source.
type Feed struct {
	// Dataset labels logs, metrics and store metadata ("go", "kegg").
	Dataset string
	URL     string
	// Organism is recorded in store metadata.
	Organism string
	// CommentPrefix marks lines to skip. Empty disables comment detection.
	CommentPrefix string
	// Parse turns one data line into a record. Malformed lines return an
	// error wrapping apperrors.ErrParse.
	Parse func(line string) (api.Annotation, error)
}

// GAFMinFields is the minimum column count of a GAF 2.x data line.
const GAFMinFields = 17

// GAFFeed reads a GO Annotation File. organism is stored on every row.
func GAFFeed(url, organism string) Feed {
	return Feed{
		Dataset:       "go",
		URL:           url,
		Organism:      organism,
		CommentPrefix: "!",
		Parse: func(line string) (api.Annotation, error) {
			return ParseGAFLine(line, organism)
		},
	}
}

// ParseGAFLine extracts gene id, symbol, GO id, evidence and aspect from one
// GAF data line.
func ParseGAFLine(line, organism string) (api.Annotation, error) {
	f := strings.Split(line, "\t")
	if len(f) < GAFMinFields {
		return api.Annotation{}, apperrors.Newf("gaf", apperrors.ErrParse,
			"want at least %d fields, got %d", GAFMinFields, len(f))
	}
	a := api.Annotation{
		GeneID:       f[1],
		GeneSymbol:   f[2],
		TargetID:     f[4],
		EvidenceCode: f[6],
		Aspect:       f[8],
		Organism:     organism,
	}
	if a.GeneID == "" || a.TargetID == "" {
		return api.Annotation{}, apperrors.Newf("gaf", apperrors.ErrParse, "empty gene or term id")
	}
	if a.GeneSymbol == "" {
		a.GeneSymbol = a.GeneID
	}
	return a, nil
}

// KEGGLinkFeed reads /link/pathway/{org}. names maps pathway id to pathway
// name and may be nil.
func KEGGLinkFeed(url, org string, names map[string]string) Feed {
	return Feed{
		Dataset:  "kegg",
		URL:      url,
		Organism: org,
		Parse: func(line string) (api.Annotation, error) {
			a, err := ParseKEGGLink(line, org)
			if err != nil {
				return a, err
			}
			a.TargetName = names[a.TargetID]
			return a, nil
		},
	}
}

// ParseKEGGLink parses "hsa:7157\tpath:hsa05200". The symbol is the part of
// the gene id after the organism prefix.
func ParseKEGGLink(line, org string) (api.Annotation, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 2 {
		return api.Annotation{}, apperrors.Newf("kegg.link", apperrors.ErrParse, "want 2 fields, got %d", len(parts))
	}
	geneID := strings.TrimSpace(parts[0])
	pathway := strings.TrimPrefix(strings.TrimSpace(parts[1]), "path:")
	if geneID == "" || pathway == "" {
		return api.Annotation{}, apperrors.Newf("kegg.link", apperrors.ErrParse, "empty gene or pathway id")
	}
	symbol := geneID
	if _, after, ok := strings.Cut(geneID, ":"); ok {
		symbol = after
	}
	return api.Annotation{GeneID: geneID, GeneSymbol: symbol, TargetID: pathway, Organism: org}, nil
}

// ParsePathwayList reads /list/pathway/{org} into pathway id → name.
func ParsePathwayList(r io.Reader) (map[string]string, error) {
	names := map[string]string{}
	sc := newLineScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		id, name, ok := strings.Cut(line, "\t")
		if !ok || id == "" {
			continue
		}
		names[strings.TrimPrefix(id, "path:")] = strings.TrimSpace(name)
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.New("kegg.list", apperrors.ErrNetwork, err)
	}
	return names, nil
}

// decompress returns r unchanged unless it starts with the gzip magic bytes.
func decompress(r io.Reader) (io.Reader, func() error, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, nil, apperrors.New("ingest.decompress", apperrors.ErrNetwork, err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, apperrors.New("ingest.decompress", apperrors.ErrParse, fmt.Errorf("gzip header: %w", err))
		}
		return zr, zr.Close, nil
	}
	return br, func() error { return nil }, nil
}

// GAF lines can carry long extension columns.
const maxLineSize = 4 * 1024 * 1024

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return sc
}
