package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Defaults for conversation bounds.
const (
	DefaultMaxTurns = 20
	DefaultMaxFiles = 5
)

const turnSummaryLimit = 200

// Turn is one completed query/response exchange.
type Turn struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	ToolsUsed []string  `json:"tools_used,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FilePreview is a truncated snapshot of a file the agent touched.
type FilePreview struct {
	Path      string    `json:"path"`
	Preview   string    `json:"preview"`
	Timestamp time.Time `json:"timestamp"`
}

// ProjectInfo describes the detected project type of a workspace.
type ProjectInfo struct {
	Language string `json:"language"`
	Marker   string `json:"marker"`
}

// Conversation is the bounded memory of one session. Turns are capped at
// maxTurns (oldest evicted first) and file previews at maxFiles with
// most-recently-used retention.
type Conversation struct {
	mu          sync.Mutex
	id          string
	workspace   string
	contextName string
	project     *ProjectInfo
	turns       []Turn
	files       []FilePreview
	maxTurns    int
	maxFiles    int
	lastUsed    time.Time
}

func newConversation(id, workspace, contextName string, maxTurns, maxFiles int) *Conversation {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	return &Conversation{
		id:          id,
		workspace:   workspace,
		contextName: contextName,
		maxTurns:    maxTurns,
		maxFiles:    maxFiles,
		lastUsed:    time.Now(),
	}
}

// ID returns the session identifier.
func (c *Conversation) ID() string { return c.id }

// Workspace returns the workspace path the session is bound to.
func (c *Conversation) Workspace() string { return c.workspace }

// ContextName returns the named context the session was created under.
func (c *Conversation) ContextName() string { return c.contextName }

// Touch refreshes the last-used timestamp.
func (c *Conversation) Touch() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

// LastUsed returns the last activity time.
func (c *Conversation) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// SetProject records detected project information.
func (c *Conversation) SetProject(info ProjectInfo) {
	c.mu.Lock()
	c.project = &info
	c.mu.Unlock()
}

// AddTurn appends a completed exchange, evicting the oldest past the cap.
func (c *Conversation) AddTurn(turn Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	c.turns = append(c.turns, turn)
	if len(c.turns) > c.maxTurns {
		c.turns = c.turns[len(c.turns)-c.maxTurns:]
	}
	c.lastUsed = time.Now()
}

// Turns returns a copy of the recorded turns.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// AddFileContext records a preview for a touched file. Re-adding an existing
// path moves it to the most-recent position; the least recent entry is
// evicted past the cap.
func (c *Conversation) AddFileContext(path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	preview := truncate(content, turnSummaryLimit)

	for i, f := range c.files {
		if f.Path == path {
			c.files = append(c.files[:i], c.files[i+1:]...)
			break
		}
	}
	c.files = append(c.files, FilePreview{Path: path, Preview: preview, Timestamp: time.Now()})
	if len(c.files) > c.maxFiles {
		c.files = c.files[len(c.files)-c.maxFiles:]
	}
	c.lastUsed = time.Now()
}

// Files returns a copy of retained file previews, least recent first.
func (c *Conversation) Files() []FilePreview {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FilePreview, len(c.files))
	copy(out, c.files)
	return out
}

// ContextForPrompt renders the session memory as prompt text: workspace,
// context name, project info, retained file previews, and the last five
// turns with truncated responses.
func (c *Conversation) ContextForPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	if c.workspace != "" {
		fmt.Fprintf(&b, "Workspace: %s\n", c.workspace)
	}
	if c.contextName != "" {
		fmt.Fprintf(&b, "Context: %s\n", c.contextName)
	}
	if c.project != nil {
		fmt.Fprintf(&b, "Project: %s (%s)\n", c.project.Language, c.project.Marker)
	}
	if len(c.files) > 0 {
		b.WriteString("Recently touched files:\n")
		for _, f := range c.files {
			fmt.Fprintf(&b, "- %s: %s\n", f.Path, firstLine(f.Preview))
		}
	}
	if len(c.turns) > 0 {
		b.WriteString("Previous exchanges:\n")
		start := 0
		if len(c.turns) > 5 {
			start = len(c.turns) - 5
		}
		for _, turn := range c.turns[start:] {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", truncate(turn.Query, turnSummaryLimit), truncate(turn.Response, turnSummaryLimit))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncate cuts s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
