package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/genesets"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTerms map[string]api.Term

func (f fakeTerms) GetTerm(_ context.Context, id string) (api.Term, error) {
	t, ok := f[id]
	if !ok {
		return api.Term{}, apperrors.Newf("term", apperrors.ErrNotFound, "%s", id)
	}
	return t, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	path := filepath.Join(dir, "go_human.db")
	st, err := store.Open(ctx, path, store.KindTerm)
	require.NoError(t, err)
	_, err = st.Insert(ctx, []api.Annotation{
		{GeneID: "P04637", GeneSymbol: "TP53", TargetID: "GO:0006915", TargetName: "apoptotic process", EvidenceCode: "IDA", Aspect: "P", Organism: "human"},
		{GeneID: "P04637", GeneSymbol: "TP53", TargetID: "GO:0003677", TargetName: "DNA binding", EvidenceCode: "IEA", Aspect: "F", Organism: "human"},
		{GeneID: "P38398", GeneSymbol: "BRCA1", TargetID: "GO:0005634", TargetName: "nucleus", EvidenceCode: "IDA", Aspect: "C", Organism: "human"},
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	gs, err := genesets.Open(ctx, filepath.Join(dir, "msigdb_human.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })
	_, err = gs.Replace(ctx, "H", "human", []api.GeneSet{
		{ID: "HALLMARK_APOPTOSIS", Genes: []string{"TP53", "BAX"}},
		{ID: "HALLMARK_HYPOXIA", Genes: []string{"VEGFA"}},
	})
	require.NoError(t, err)

	return New("pathwaydb-test", "0.0.0", Deps{
		Open: func(ctx context.Context, dataset, species string) (*store.Store, error) {
			if dataset != "go" || species != "human" {
				return nil, apperrors.Newf("open", apperrors.ErrNotFound, "no %s store for %s", dataset, species)
			}
			return store.OpenReadOnly(path, store.KindTerm)
		},
		GeneSets: gs,
		Terms:    fakeTerms{"GO:0006915": {ID: "GO:0006915", Name: "apoptotic process", Namespace: "P"}},
	})
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), req))
	require.NoError(t, err)
	var resp struct {
		Result *mcp.CallToolResult `json:"result,omitempty"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
	return resp.Result
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestToolsRegistered(t *testing.T) {
	s := newTestServer(t)
	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	var names []string
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"filter_annotations", "annotation_stats", "gene_sets_for_genes", "get_term"}, names)
}

func TestToolsOmittedWithoutBackends(t *testing.T) {
	s := New("empty", "0.0.0", Deps{})
	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "filter_annotations")
}

func TestFilterAnnotations(t *testing.T) {
	s := newTestServer(t)

	res := callTool(t, s, "filter_annotations", map[string]any{
		"dataset": "go", "species": "human", "gene_symbols": []any{"TP53"}, "evidence_codes": []any{"IDA"},
	})
	assert.False(t, res.IsError)
	var out struct {
		Count       int              `json:"count"`
		Annotations []api.Annotation `json:"annotations"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "GO:0006915", out.Annotations[0].TargetID)

	res = callTool(t, s, "filter_annotations", map[string]any{"dataset": "go", "species": "human", "namespace": "bogus"})
	assert.True(t, res.IsError)

	res = callTool(t, s, "filter_annotations", map[string]any{"dataset": "kegg", "species": "human"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "no kegg store")
}

func TestAnnotationStats(t *testing.T) {
	s := newTestServer(t)
	res := callTool(t, s, "annotation_stats", map[string]any{"dataset": "go", "species": "human"})
	require.False(t, res.IsError)
	var st store.Stats
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &st))
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.UniqueGenes)
}

func TestGeneSetsForGenes(t *testing.T) {
	s := newTestServer(t)
	res := callTool(t, s, "gene_sets_for_genes", map[string]any{"genes": []any{"TP53", "BAX"}})
	require.False(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, `"gene_set_id":"HALLMARK_APOPTOSIS"`)
	assert.Contains(t, text, `"overlap_count":2`)
	assert.NotContains(t, text, "HALLMARK_HYPOXIA")

	res = callTool(t, s, "gene_sets_for_genes", map[string]any{"genes": []any{}})
	assert.True(t, res.IsError)
}

func TestGetTerm(t *testing.T) {
	s := newTestServer(t)
	res := callTool(t, s, "get_term", map[string]any{"id": "GO:0006915"})
	require.False(t, res.IsError)
	assert.True(t, strings.Contains(resultText(t, res), "apoptotic process"))

	res = callTool(t, s, "get_term", map[string]any{"id": "GO:9999999"})
	assert.True(t, res.IsError)
}
