package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tessera-dev/tessera/internal/retrieval"
	"github.com/tessera-dev/tessera/internal/websearch"
)

// Retriever ranks workspace files against a query under a token budget.
type Retriever interface {
	Retrieve(ctx context.Context, query string, tokenBudget int) (retrieval.ResultSet, error)
}

// CodeSearchTool surfaces the retrieval engine as an agent tool.
type CodeSearchTool struct {
	Retriever   Retriever
	TokenBudget int
}

func (t *CodeSearchTool) Name() string { return "code_search" }

func (t *CodeSearchTool) Description() string {
	return "Find workspace files relevant to a query, ranked by relevance"
}

func (t *CodeSearchTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: []SchemaField{
			{Name: "query", Type: "string", Description: "Search terms", Required: true},
			{Name: "limit", Type: "integer", Description: "Maximum files to return (default 5)", Required: false},
		},
	}
}

func (t *CodeSearchTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	query := stringArg(args, "query")
	limit := intArg(args, "limit", 5)

	set, err := t.Retriever.Retrieve(ctx, query, t.TokenBudget)
	if err != nil {
		return Result{}, err
	}
	if len(set.Artifacts) > limit {
		set.Artifacts = set.Artifacts[:limit]
	}

	if len(set.Artifacts) == 0 {
		return ok("no matching files"), nil
	}

	var b strings.Builder
	for _, a := range set.Artifacts {
		fmt.Fprintf(&b, "%s (score %.2f): %s\n", a.Path, a.Score, retrieval.Summarize(a.Content))
	}

	res := ok(strings.TrimRight(b.String(), "\n"))
	res.Data = map[string]interface{}{
		"artifacts":   set.Artifacts,
		"tokens_used": set.TokensUsed,
	}
	return res, nil
}

// Searcher runs web queries.
type Searcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// WebSearchTool surfaces the web search client as an agent tool.
type WebSearchTool struct {
	Searcher Searcher
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web and return titles, URLs, and snippets"
}

func (t *WebSearchTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: []SchemaField{
			{Name: "query", Type: "string", Description: "Search terms", Required: true},
		},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	results, err := t.Searcher.Search(ctx, stringArg(args, "query"))
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return ok("no results"), nil
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "%s\n%s\n%s\n\n", r.Title, r.URL, r.Content)
	}

	res := ok(strings.TrimRight(b.String(), "\n"))
	res.Data = map[string]interface{}{"results": results}
	return res, nil
}
