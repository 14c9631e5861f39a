package chat

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/systemshift/graphchat/internal/history"
	"github.com/systemshift/graphchat/internal/metrics"
)

// Manager tracks live sessions by id.
type Manager struct {
	store   history.Store
	opts    Options
	metrics *metrics.Collector
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions share store. m may be nil.
func NewManager(store history.Store, opts Options, m *metrics.Collector, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		opts:     opts,
		metrics:  m,
		logger:   logger.Named("chat"),
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session for userID on conn.
func (m *Manager) Create(userID string, conn Conn) *Session {
	s := NewSession(uuid.NewString(), userID, conn, m.store, m.opts, m.metrics, m.logger)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Inc()
	}
	m.logger.Debug("session created", zap.String("session", s.ID()), zap.String("user", userID))
	return s
}

// Get looks up a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// End forgets a session. Ending an unknown id is a no-op.
func (m *Manager) End(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Dec()
	}
	m.logger.Debug("session ended",
		zap.String("session", id),
		zap.Int("exchanges", len(s.Memory())),
	)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
