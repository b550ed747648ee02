package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/tessera-dev/tessera/internal/retrieval"
	"github.com/tessera-dev/tessera/internal/websearch"
)

type fakeRetriever struct {
	set retrieval.ResultSet
	err error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, tokenBudget int) (retrieval.ResultSet, error) {
	return f.set, f.err
}

func TestCodeSearchFormatsHits(t *testing.T) {
	tool := &CodeSearchTool{
		Retriever: &fakeRetriever{set: retrieval.ResultSet{
			Artifacts: []retrieval.Artifact{
				{Path: "a.go", Content: "package a", Score: 0.9},
				{Path: "b.go", Content: "package b", Score: 0.5},
			},
			TokensUsed: 4,
		}},
		TokenBudget: 100,
	}

	res, err := tool.Execute(context.Background(), map[string]interface{}{"query": "package"})
	requireNoError(t, err)
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if !strings.Contains(res.Output, "a.go") || !strings.Contains(res.Output, "b.go") {
		t.Fatalf("unexpected output: %q", res.Output)
	}
	if res.Data["tokens_used"] != 4 {
		t.Fatalf("unexpected token accounting: %v", res.Data["tokens_used"])
	}
}

func TestCodeSearchAppliesLimit(t *testing.T) {
	artifacts := make([]retrieval.Artifact, 8)
	for i := range artifacts {
		artifacts[i] = retrieval.Artifact{Path: fmt.Sprintf("f%d.go", i), Content: "x", Score: 1}
	}
	tool := &CodeSearchTool{
		Retriever: &fakeRetriever{set: retrieval.ResultSet{Artifacts: artifacts}},
	}

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"query": "x",
		"limit": float64(2),
	})
	requireNoError(t, err)
	got := res.Data["artifacts"].([]retrieval.Artifact)
	if len(got) != 2 {
		t.Fatalf("expected 2 artifacts after limit, got %d", len(got))
	}
}

func TestCodeSearchEmpty(t *testing.T) {
	tool := &CodeSearchTool{Retriever: &fakeRetriever{}}
	res, err := tool.Execute(context.Background(), map[string]interface{}{"query": "nothing"})
	requireNoError(t, err)
	if res.Output != "no matching files" {
		t.Fatalf("unexpected output: %q", res.Output)
	}
}

type fakeSearcher struct {
	results []websearch.Result
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]websearch.Result, error) {
	return f.results, f.err
}

func TestWebSearchFormatsResults(t *testing.T) {
	tool := &WebSearchTool{Searcher: &fakeSearcher{results: []websearch.Result{
		{Title: "Go", URL: "https://go.dev", Content: "The Go programming language"},
	}}}

	res, err := tool.Execute(context.Background(), map[string]interface{}{"query": "go"})
	requireNoError(t, err)
	if !strings.Contains(res.Output, "https://go.dev") {
		t.Fatalf("unexpected output: %q", res.Output)
	}
}

func TestWebSearchNoResults(t *testing.T) {
	tool := &WebSearchTool{Searcher: &fakeSearcher{}}
	res, err := tool.Execute(context.Background(), map[string]interface{}{"query": "nothing"})
	requireNoError(t, err)
	if res.Output != "no results" {
		t.Fatalf("unexpected output: %q", res.Output)
	}
}
