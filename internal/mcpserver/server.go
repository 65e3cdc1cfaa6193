// Package mcpserver exposes read-only annotation queries as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/guokai8/pathwaydb/internal/genesets"
	"github.com/guokai8/pathwaydb/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// maxLimit caps rows returned by filter_annotations.
const maxLimit = 1000

// OpenStore opens the annotation store for a dataset ("go" or "kegg") and
// species. The caller closes it.
type OpenStore func(ctx context.Context, dataset, species string) (*store.Store, error)

// TermLookup resolves a single GO term.
type TermLookup interface {
	GetTerm(ctx context.Context, id string) (api.Term, error)
}

// Deps are the backends behind the tools. Nil members disable their tools.
type Deps struct {
	Open     OpenStore
	GeneSets *genesets.Store
	Terms    TermLookup
	Logger   *zap.Logger
}

// Server wraps an mcp-go server with the registered tools.
type Server struct {
	mcp    *server.MCPServer
	deps   Deps
	logger *zap.Logger
}

// New builds the server and registers every tool whose backend is present.
func New(name, version string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		mcp:    server.NewMCPServer(name, version, server.WithToolCapabilities(true)),
		deps:   deps,
		logger: deps.Logger,
	}
	if deps.Open != nil {
		s.registerFilterTool()
		s.registerStatsTool()
	}
	if deps.GeneSets != nil {
		s.registerGeneSetTool()
	}
	if deps.Terms != nil {
		s.registerTermTool()
	}
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func datasetParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("dataset", mcp.Required(), mcp.Enum("go", "kegg"),
			mcp.Description("Annotation dataset: go or kegg")),
		mcp.WithString("species", mcp.Required(),
			mcp.Description("Species name, e.g. human, mouse, rat")),
	}
}

func stringList(name, desc string) mcp.ToolOption {
	return mcp.WithArray(name, mcp.Description(desc), mcp.Items(map[string]any{"type": "string"}))
}

func (s *Server) registerFilterTool() {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Filter gene annotations by gene, term or pathway, evidence code, aspect and name. " +
			"All supplied filters must hold."),
	}, datasetParams()...)
	opts = append(opts,
		stringList("gene_symbols", "Gene symbols to match"),
		stringList("gene_ids", "Gene identifiers to match"),
		stringList("targets", "GO term or pathway ids to match"),
		stringList("evidence_codes", "Evidence codes to keep, e.g. IDA, IMP"),
		mcp.WithString("aspect", mcp.Description("GO aspect: P, F or C")),
		mcp.WithString("namespace", mcp.Description("GO namespace: biological_process, molecular_function or cellular_component")),
		mcp.WithString("name_contains", mcp.Description("Case-insensitive substring of the term or pathway name")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum rows (default 100, max %d)", maxLimit))),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
	tool := mcp.NewTool("filter_annotations", opts...)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, res := s.openFromRequest(ctx, req)
		if res != nil {
			return res, nil
		}
		defer func() { _ = st.Close() }()

		args := arguments(req)
		limit := intArg(args, "limit", 100)
		if limit <= 0 || limit > maxLimit {
			limit = maxLimit
		}
		rows, err := st.Filter(ctx, store.Filter{
			GeneSymbols:   stringsArg(args, "gene_symbols"),
			GeneIDs:       stringsArg(args, "gene_ids"),
			TargetIDs:     stringsArg(args, "targets"),
			EvidenceCodes: stringsArg(args, "evidence_codes"),
			Aspect:        stringArg(args, "aspect"),
			Namespace:     stringArg(args, "namespace"),
			TargetName:    stringArg(args, "name_contains"),
			Limit:         limit,
		})
		if err != nil {
			return toolError(err)
		}
		if rows == nil {
			rows = []api.Annotation{}
		}
		return jsonResult(map[string]any{"count": len(rows), "annotations": rows})
	})
}

func (s *Server) registerStatsTool() {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Summary counts for an annotation store: rows, genes, targets, evidence codes, named targets"),
	}, datasetParams()...)
	opts = append(opts, mcp.WithReadOnlyHintAnnotation(true))

	s.mcp.AddTool(mcp.NewTool("annotation_stats", opts...), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, res := s.openFromRequest(ctx, req)
		if res != nil {
			return res, nil
		}
		defer func() { _ = st.Close() }()
		stats, err := st.Stats(ctx)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(stats)
	})
}

func (s *Server) registerGeneSetTool() {
	tool := mcp.NewTool("gene_sets_for_genes",
		mcp.WithDescription("Gene sets containing the given genes, ranked by overlap"),
		mcp.WithArray("genes", mcp.Required(), mcp.Description("Gene symbols"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("collection", mcp.Description("MSigDB collection, e.g. H, C2, C5")),
		mcp.WithNumber("min_overlap", mcp.Description("Minimum shared genes (default 1)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(req)
		genes := stringsArg(args, "genes")
		if len(genes) == 0 {
			return mcp.NewToolResultError("genes must list at least one symbol"), nil
		}
		hits, err := s.deps.GeneSets.QueryByGene(ctx, genes, stringArg(args, "collection"), intArg(args, "min_overlap", 1))
		if err != nil {
			return toolError(err)
		}
		if hits == nil {
			hits = []genesets.Overlap{}
		}
		return jsonResult(map[string]any{"count": len(hits), "gene_sets": hits})
	})
}

func (s *Server) registerTermTool() {
	tool := mcp.NewTool("get_term",
		mcp.WithDescription("Look up a GO term by id"),
		mcp.WithString("id", mcp.Required(), mcp.Description("GO term id, e.g. GO:0006915")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		term, err := s.deps.Terms.GetTerm(ctx, id)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(term)
	})
}

func (s *Server) openFromRequest(ctx context.Context, req mcp.CallToolRequest) (*store.Store, *mcp.CallToolResult) {
	args := arguments(req)
	dataset, species := stringArg(args, "dataset"), stringArg(args, "species")
	if dataset == "" || species == "" {
		return nil, mcp.NewToolResultError("dataset and species are required")
	}
	st, err := s.deps.Open(ctx, dataset, species)
	if err != nil {
		s.logger.Warn("open store", zap.String("dataset", dataset), zap.String("species", species), zap.Error(err))
		return nil, mcp.NewToolResultError(err.Error())
	}
	return st, nil
}

// toolError reports caller mistakes as tool results and everything else as
// a protocol error.
func toolError(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidFilter),
		errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrConfiguration):
		return mcp.NewToolResultError(err.Error()), nil
	}
	return nil, err
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func stringsArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
