package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSessionTTL marks sessions stale after a day of inactivity.
const DefaultSessionTTL = 24 * time.Hour

// Manager owns all live conversations and evicts stale ones.
type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*Conversation
	maxTurns   int
	maxFiles   int
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewManager builds a manager with the given per-session bounds.
func NewManager(maxTurns, maxFiles int, sessionTTL time.Duration, logger *zap.Logger) *Manager {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions:   make(map[string]*Conversation),
		maxTurns:   maxTurns,
		maxFiles:   maxFiles,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// GetOrCreate returns the session for id, creating it when unknown. An empty
// id allocates a fresh session. The returned boolean reports creation.
func (m *Manager) GetOrCreate(id, workspace, contextName string) (*Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if conv, ok := m.sessions[id]; ok {
			conv.Touch()
			return conv, false
		}
	} else {
		id = uuid.NewString()
	}

	conv := newConversation(id, workspace, contextName, m.maxTurns, m.maxFiles)
	if info, ok := DetectProject(workspace); ok {
		conv.SetProject(info)
	}
	m.sessions[id] = conv
	m.logger.Debug("session created", zap.String("session_id", id), zap.String("workspace", workspace))
	return conv, true
}

// Get returns an existing session.
func (m *Manager) Get(id string) (*Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.sessions[id]
	return conv, ok
}

// Remove deletes a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CleanupStale removes sessions idle past the TTL and returns how many were
// evicted.
func (m *Manager) CleanupStale() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.sessionTTL)
	removed := 0
	for id, conv := range m.sessions {
		if conv.LastUsed().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("stale sessions evicted", zap.Int("count", removed))
	}
	return removed
}

// StartSweeper runs CleanupStale on an interval until ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupStale()
			}
		}
	}()
}

// DetectProject inspects well-known build markers at the workspace root.
func DetectProject(workspace string) (ProjectInfo, bool) {
	markers := []struct {
		file     string
		language string
	}{
		{"go.mod", "go"},
		{"package.json", "javascript"},
		{"pyproject.toml", "python"},
		{"Cargo.toml", "rust"},
	}
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(workspace, m.file)); err == nil {
			return ProjectInfo{Language: m.language, Marker: m.file}, true
		}
	}
	return ProjectInfo{}, false
}
