package ingest

import (
	"context"
	"strings"

	"github.com/guokai8/pathwaydb/internal/fetch"
)

// KEGGLinkURL is the gene→pathway link listing for org.
func KEGGLinkURL(base, org string) string {
	return strings.TrimRight(base, "/") + "/link/pathway/" + org
}

// KEGGListURL is the pathway id→name listing for org.
func KEGGListURL(base, org string) string {
	return strings.TrimRight(base, "/") + "/list/pathway/" + org
}

// LoadPathwayNames fetches and parses the pathway listing for org.
func LoadPathwayNames(ctx context.Context, f fetch.Fetcher, base, org string) (map[string]string, error) {
	body, err := f.Open(ctx, KEGGListURL(base, org))
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	return ParsePathwayList(body)
}
