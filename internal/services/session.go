package services

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
)

// SessionManager serializes work on bot sessions per (phone, flow) and owns
// the get-or-create of the active session.
type SessionManager struct {
	store storage.Store
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionManager creates a new session manager
func NewSessionManager(store storage.Store) *SessionManager {
	return &SessionManager{
		store: store,
		locks: make(map[string]*sessionLock),
	}
}

func sessionKey(phone, flowID string) string {
	return flowID + "|" + phone
}

// Lock blocks until the caller owns the (phone, flow) pair and returns the
// release function.
func (sm *SessionManager) Lock(phone, flowID string) func() {
	key := sessionKey(phone, flowID)

	sm.mu.Lock()
	l, ok := sm.locks[key]
	if !ok {
		l = &sessionLock{}
		sm.locks[key] = l
	}
	l.refs++
	sm.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			sm.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(sm.locks, key)
			}
			sm.mu.Unlock()
		})
	}
}

// GetOrCreate returns the active session for (phone, flow), creating one at
// the initial step when none exists. Callers hold Lock for the pair.
func (sm *SessionManager) GetOrCreate(phone, flowID string) (*models.BotSession, bool, error) {
	session, err := sm.store.GetActiveSession(phone, flowID)
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("load session: %w", err)
	}

	session, err = sm.store.CreateSession(&models.BotSession{
		PhoneNumber: phone,
		BotFlowID:   flowID,
		CurrentStep: models.InitialStepKey,
		IsActive:    true,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		// another process won the race; the unique index kept it single
		session, err = sm.store.GetActiveSession(phone, flowID)
		return session, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("create session: %w", err)
	}
	log.Printf("🤖 Bot session %s created for %s", session.ID, phone)
	return session, true, nil
}

// Advance moves the session to step
func (sm *SessionManager) Advance(session *models.BotSession, step string) error {
	session.CurrentStep = step
	return sm.store.UpdateSession(session)
}

// End deactivates the session
func (sm *SessionManager) End(session *models.BotSession) error {
	session.IsActive = false
	return sm.store.UpdateSession(session)
}

// Handoff deactivates the session and links it to the human conversation
func (sm *SessionManager) Handoff(session *models.BotSession, conversationID int) error {
	session.IsActive = false
	session.ConversationID = &conversationID
	return sm.store.UpdateSession(session)
}

// GetActiveSessions lists every active session
func (sm *SessionManager) GetActiveSessions() []*models.BotSession {
	active := true
	sessions, err := sm.store.ListSessions(storage.SessionFilter{IsActive: &active})
	if err != nil {
		log.Printf("⚠️  Could not list active sessions: %v", err)
		return nil
	}
	return sessions
}
