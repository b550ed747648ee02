package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAnswer(t *testing.T) {
	parsed := ParseResponse("Thought: the task is done\nAnswer: all files listed")
	require.Equal(t, ParsedAnswer, parsed.Kind)
	require.Equal(t, "the task is done", parsed.Thought)
	require.Equal(t, "all files listed", parsed.Answer)
	require.Nil(t, parsed.Call)
}

func TestParseAction(t *testing.T) {
	parsed := ParseResponse(`Thought: need the file
Action: read_file(path="x.txt")`)
	require.Equal(t, ParsedAction, parsed.Kind)
	require.Equal(t, "need the file", parsed.Thought)
	require.NotNil(t, parsed.Call)
	require.Equal(t, "read_file", parsed.Call.Name)
	require.Equal(t, "x.txt", parsed.Call.Args["path"])
}

func TestParseActionMultipleArgs(t *testing.T) {
	parsed := ParseResponse(`Thought: write it
Action: write_file(path="a/b.txt", content="hello \"world\"\nline two")`)
	require.Equal(t, ParsedAction, parsed.Kind)
	require.Equal(t, "a/b.txt", parsed.Call.Args["path"])
	require.Equal(t, "hello \"world\"\nline two", parsed.Call.Args["content"])
}

func TestParseAnswerWinsOverAction(t *testing.T) {
	parsed := ParseResponse(`Thought: both shapes
Action: read_file(path="x")
Answer: final`)
	require.Equal(t, ParsedAnswer, parsed.Kind)
	require.Equal(t, "final", parsed.Answer)
}

func TestParseMultilineAnswer(t *testing.T) {
	parsed := ParseResponse("Thought: summary\nAnswer: line one\nline two")
	require.Equal(t, ParsedAnswer, parsed.Kind)
	require.Equal(t, "line one\nline two", parsed.Answer)
}

func TestParseFailures(t *testing.T) {
	cases := []string{
		"",
		"just some freeform text",
		"Thought: reasoning with no follow-up",
		"Action: missing_thought(arg=\"v\")\nand trailing noise",
	}
	for _, input := range cases {
		parsed := ParseResponse(input)
		require.Equal(t, ParsedFailure, parsed.Kind, "input %q should fail", input)
		require.NotEmpty(t, parsed.Reason)
	}
}

func TestParseActionNoArgs(t *testing.T) {
	parsed := ParseResponse("Thought: check state\nAction: git_status()")
	require.Equal(t, ParsedAction, parsed.Kind)
	require.Equal(t, "git_status", parsed.Call.Name)
	require.Empty(t, parsed.Call.Args)
}
