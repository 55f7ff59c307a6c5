package mixer

import (
	"sync"
	"time"

	"ZenMix/core/audio"
	"ZenMix/logger"

	"github.com/google/uuid"
)

// Session is one user's live mixer.
type Session struct {
	ID        string
	UserID    int64
	Engine    *Engine
	CreatedAt time.Time
}

// Manager owns at most one mixer session per user. Sessions are created
// lazily on first use and must be closed explicitly (or via CloseAll on
// shutdown) so no adapter handle outlives its user.
type Manager struct {
	mu       sync.Mutex
	adapter  audio.Adapter
	opts     Options
	sessions map[int64]*Session
}

// NewManager 创建会话管理器
func NewManager(adapter audio.Adapter, opts Options) *Manager {
	return &Manager{
		adapter:  adapter,
		opts:     opts,
		sessions: make(map[int64]*Session),
	}
}

// Get returns the user's session, creating and starting one with the
// default slots if none exists.
func (m *Manager) Get(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s
	}

	engine := New(m.adapter, m.opts)
	for i := 0; i < DefaultSlots; i++ {
		if _, err := engine.AddTrack(); err != nil {
			break
		}
	}
	engine.Start()

	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Engine:    engine,
		CreatedAt: time.Now(),
	}
	m.sessions[userID] = s
	logger.Info("mixer session created",
		logger.String("sessionId", s.ID),
		logger.Int64("userId", userID))
	return s
}

// Peek returns the user's session without creating one.
func (m *Manager) Peek(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

// Close tears down the user's session, unloading every live handle.
func (m *Manager) Close(userID int64) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if ok {
		s.Engine.Close()
		logger.Info("mixer session closed",
			logger.String("sessionId", s.ID),
			logger.Int64("userId", userID))
	}
}

// CloseAll tears down every session. Called on server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[int64]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Engine.Close()
	}
}
