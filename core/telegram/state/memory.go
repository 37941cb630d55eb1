package state

import (
	"log/slog"
	"sync"

	"github.com/m3rciful/shopbot/core/logger"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// memoryManager keeps sessions in a map under one lock. A session that is
// idle and holds no temp data is dropped, so the map only grows with
// conversations in progress.
type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	handlers map[State]tele.HandlerFunc
}

// NewMemoryManager returns a Manager whose sessions do not survive a restart.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[int64]*Session),
		handlers: make(map[State]tele.HandlerFunc),
	}
}

func (m *memoryManager) RegisterHandler(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	m.mu.Lock()
	m.handlers[st] = h
	m.mu.Unlock()
}

// update runs fn on the user's session, creating it when needed, and drops
// the session afterwards if nothing is left in it.
func (m *memoryManager) update(userID int64, fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = &Session{State: StateIdle, TempData: make(map[string]any)}
	}
	fn(s)
	if s.State == StateIdle && len(s.TempData) == 0 {
		delete(m.sessions, userID)
		return
	}
	m.sessions[userID] = s
}

func (m *memoryManager) SetTemp(userID int64, key string, value any) {
	m.update(userID, func(s *Session) { s.TempData[key] = value })
}

func (m *memoryManager) GetTemp(userID int64, key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	v, ok := s.TempData[key]
	return v, ok
}

func (m *memoryManager) ClearTemp(userID int64, key string) {
	m.update(userID, func(s *Session) { delete(s.TempData, key) })
}

// Clear forgets the user's state and temp data.
func (m *memoryManager) Clear(userID int64) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

func (m *memoryManager) SetState(userID int64, st State) {
	m.update(userID, func(s *Session) { s.State = st })
}

// GetState returns StateIdle for users without a session.
func (m *memoryManager) GetState(userID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[userID]; ok {
		return s.State
	}
	return StateIdle
}

// ClearState returns the user to idle and keeps temp data.
func (m *memoryManager) ClearState(userID int64) {
	m.SetState(userID, StateIdle)
}

func (m *memoryManager) HasState(userID int64) bool {
	return m.GetState(userID) != StateIdle
}

func (m *memoryManager) InProgress(userID int64) bool {
	return m.HasState(userID)
}

// ManagerHandler dispatches c to the handler registered for the sender's
// current state. Updates in a state without a handler are ignored.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	userID := c.Sender().ID
	current := m.GetState(userID)

	m.mu.RLock()
	h, ok := m.handlers[current]
	m.mu.RUnlock()

	logger.Debug(tghelpers.BuildContext(c), "tg", "fsm.manager",
		slog.String("state", string(current)),
		slog.Bool("handled", ok),
	)
	if !ok {
		return nil
	}
	return h(c)
}
