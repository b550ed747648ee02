package retrieval

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
)

// FileWalker abstracts file traversal and reading.
type FileWalker interface {
	WalkFiles(root string, maxFiles int, fn func(rel string, info fs.DirEntry) error) error
	ReadFile(path string) (string, error)
}

// Artifact is one retrieved file with its relevance score.
type Artifact struct {
	Path    string  `json:"path"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ResultSet is the budget-bounded output of a retrieval pass. TokensUsed is
// an estimate at four bytes per token.
type ResultSet struct {
	Artifacts  []Artifact `json:"artifacts"`
	TokensUsed int        `json:"tokens_used"`
}

// Engine ranks workspace files by token overlap with a query and assembles a
// result set under a token budget.
type Engine struct {
	fs           FileWalker
	maxFiles     int
	maxFileBytes int
}

// NewEngine constructs an engine over the provided walker.
func NewEngine(fw FileWalker, maxFiles, maxFileBytes int) *Engine {
	if maxFiles <= 0 {
		maxFiles = 200
	}
	if maxFileBytes <= 0 {
		maxFileBytes = 64 * 1024
	}
	return &Engine{fs: fw, maxFiles: maxFiles, maxFileBytes: maxFileBytes}
}

// Retrieve returns files ranked by relevance, truncated to the token budget.
// Higher-ranked files are admitted first; a file that would overflow the
// remaining budget is trimmed rather than dropped when it is the first hit.
func (e *Engine) Retrieve(ctx context.Context, query string, tokenBudget int) (ResultSet, error) {
	if e == nil || e.fs == nil {
		return ResultSet{}, fmt.Errorf("retrieval engine unavailable")
	}
	if strings.TrimSpace(query) == "" {
		return ResultSet{}, fmt.Errorf("query is required")
	}
	if tokenBudget <= 0 {
		tokenBudget = 4096
	}

	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return ResultSet{}, fmt.Errorf("query too short")
	}

	var hits []Artifact
	err := e.fs.WalkFiles(".", e.maxFiles, func(rel string, info fs.DirEntry) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		content, err := e.fs.ReadFile(rel)
		if err != nil {
			return nil
		}
		if len(content) > e.maxFileBytes {
			content = content[:e.maxFileBytes]
		}
		score := overlapScore(qTokens, tokenize(content))
		if score <= 0 {
			return nil
		}
		hits = append(hits, Artifact{Path: rel, Content: content, Score: score})
		return nil
	})
	if err != nil {
		return ResultSet{}, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].Path < hits[j].Path
		}
		return hits[i].Score > hits[j].Score
	})

	var set ResultSet
	for _, hit := range hits {
		cost := estimateTokens(hit.Content)
		remaining := tokenBudget - set.TokensUsed
		if remaining <= 0 {
			break
		}
		if cost > remaining {
			if len(set.Artifacts) > 0 {
				break
			}
			hit.Content = hit.Content[:remaining*4]
			cost = remaining
		}
		set.Artifacts = append(set.Artifacts, hit)
		set.TokensUsed += cost
	}
	return set, nil
}

func estimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}

func overlapScore(query, doc []string) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(doc))
	for _, t := range doc {
		seen[t] = struct{}{}
	}
	var overlap int
	for _, q := range query {
		if _, ok := seen[q]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(query))
}

var tokenRe = regexp.MustCompile(`[A-Za-z0-9_]+`)

func tokenize(s string) []string {
	matches := tokenRe.FindAllString(strings.ToLower(s), -1)
	if len(matches) == 0 {
		return nil
	}
	return matches
}

// Summarize returns the first non-empty line of content, capped at 200 bytes,
// for compact observations.
func Summarize(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trim := strings.TrimSpace(line)
		if trim == "" {
			continue
		}
		if len(trim) > 200 {
			return trim[:200] + "..."
		}
		return trim
	}
	if len(content) > 200 {
		return content[:200] + "..."
	}
	return content
}
