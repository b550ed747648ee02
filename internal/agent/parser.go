package agent

import (
	"regexp"
	"strings"

	"github.com/tessera-dev/tessera/internal/tools"
)

// ParsedKind tags the shape a planner response matched.
type ParsedKind int

const (
	ParsedAnswer ParsedKind = iota
	ParsedAction
	ParsedFailure
)

// ParsedResponse is the outcome of parsing one planner response. Exactly one
// of Answer, Call, or Reason is meaningful depending on Kind.
type ParsedResponse struct {
	Kind    ParsedKind
	Thought string
	Answer  string
	Call    *tools.Call
	Reason  string
}

var (
	thoughtRe = regexp.MustCompile(`(?s)Thought:\s*(.*?)\s*(?:Action:|Answer:|$)`)
	answerRe  = regexp.MustCompile(`(?s)Answer:\s*(.*)\s*$`)
	actionRe  = regexp.MustCompile(`(?s)Action:\s*([A-Za-z_][A-Za-z0-9_]*)\s*\((.*?)\)\s*$`)
	argRe     = regexp.MustCompile(`(\w+)\s*=\s*"((?:[^"\\]|\\.)*)"`)
)

// ParseResponse matches a planner response against the two-shape grammar:
// a Thought followed by either an Answer or an Action call with key="value"
// arguments. Anything else is a parse failure.
func ParseResponse(text string) ParsedResponse {
	text = strings.TrimSpace(text)
	if text == "" {
		return ParsedResponse{Kind: ParsedFailure, Reason: "empty response"}
	}

	var thought string
	if m := thoughtRe.FindStringSubmatch(text); m != nil {
		thought = strings.TrimSpace(m[1])
	}

	if m := answerRe.FindStringSubmatch(text); m != nil {
		answer := strings.TrimSpace(m[1])
		if answer == "" {
			return ParsedResponse{Kind: ParsedFailure, Thought: thought, Reason: "empty answer"}
		}
		return ParsedResponse{Kind: ParsedAnswer, Thought: thought, Answer: answer}
	}

	if m := actionRe.FindStringSubmatch(text); m != nil {
		call := &tools.Call{Name: m[1], Args: parseArgs(m[2])}
		return ParsedResponse{Kind: ParsedAction, Thought: thought, Call: call}
	}

	return ParsedResponse{
		Kind:    ParsedFailure,
		Thought: thought,
		Reason:  "response matches neither Answer nor Action shape",
	}
}

func parseArgs(raw string) map[string]interface{} {
	args := make(map[string]interface{})
	for _, m := range argRe.FindAllStringSubmatch(raw, -1) {
		args[m[1]] = unescape(m[2])
	}
	return args
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
