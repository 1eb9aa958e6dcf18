package storage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/google/uuid"
)

// MemoryStore holds all data in memory. Used for tests and USE_MEMORY_STORE.
// Records are copied on the way in and out so callers never share state.
type MemoryStore struct {
	numbers  map[string]*models.WhatsAppNumber
	flows    map[string]*models.BotFlow
	sessions map[string]*models.BotSession
	audit    []*models.AuditLog
	users    map[string]*models.User

	// insertion order, used for "first" lookups and stable listings
	numberOrder []string
	flowOrder   []string

	mu sync.RWMutex
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		numbers:  make(map[string]*models.WhatsAppNumber),
		flows:    make(map[string]*models.BotFlow),
		sessions: make(map[string]*models.BotSession),
		users:    make(map[string]*models.User),
	}
}

// WhatsApp numbers

func (m *MemoryStore) CreateNumber(number *models.WhatsAppNumber) (*models.WhatsAppNumber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.numbers {
		if existing.InstanceID == number.InstanceID {
			return nil, ErrDuplicate
		}
	}

	number.EnsureDefaults()
	now := time.Now()
	number.CreatedAt = now
	number.UpdatedAt = now

	stored := *number
	m.numbers[stored.ID] = &stored
	m.numberOrder = append(m.numberOrder, stored.ID)
	return copyNumber(&stored), nil
}

func (m *MemoryStore) GetNumber(id string) (*models.WhatsAppNumber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	number, exists := m.numbers[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyNumber(number), nil
}

func (m *MemoryStore) GetNumberByInstanceID(instanceID string) (*models.WhatsAppNumber, error) {
	return m.firstNumber(func(n *models.WhatsAppNumber) bool { return n.InstanceID == instanceID })
}

func (m *MemoryStore) GetNumberByInboxID(inboxID int) (*models.WhatsAppNumber, error) {
	return m.firstNumber(func(n *models.WhatsAppNumber) bool { return n.InboxID != nil && *n.InboxID == inboxID })
}

func (m *MemoryStore) GetFirstConnectedNumber() (*models.WhatsAppNumber, error) {
	return m.firstNumber(func(n *models.WhatsAppNumber) bool { return n.IsConnected })
}

func (m *MemoryStore) GetFirstNumber() (*models.WhatsAppNumber, error) {
	return m.firstNumber(func(n *models.WhatsAppNumber) bool { return true })
}

func (m *MemoryStore) firstNumber(match func(*models.WhatsAppNumber) bool) (*models.WhatsAppNumber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.numberOrder {
		if n := m.numbers[id]; n != nil && match(n) {
			return copyNumber(n), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListNumbers() ([]*models.WhatsAppNumber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	numbers := make([]*models.WhatsAppNumber, 0, len(m.numbers))
	for _, id := range m.numberOrder {
		if n := m.numbers[id]; n != nil {
			numbers = append(numbers, copyNumber(n))
		}
	}
	return numbers, nil
}

func (m *MemoryStore) UpdateNumber(number *models.WhatsAppNumber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.numbers[number.ID]; !exists {
		return ErrNotFound
	}
	for id, existing := range m.numbers {
		if id != number.ID && existing.InstanceID == number.InstanceID {
			return ErrDuplicate
		}
	}
	number.UpdatedAt = time.Now()
	m.numbers[number.ID] = copyNumber(number)
	return nil
}

func (m *MemoryStore) DeleteNumber(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.numbers[id]; !exists {
		return ErrNotFound
	}
	delete(m.numbers, id)
	m.numberOrder = removeID(m.numberOrder, id)

	for flowID, flow := range m.flows {
		if flow.WhatsAppNumberID == id {
			m.deleteFlowLocked(flowID)
		}
	}
	return nil
}

// Bot flows

func (m *MemoryStore) CreateFlow(flow *models.BotFlow) (*models.BotFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}
	now := time.Now()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	if flow.IsActive {
		m.deactivateSiblingsLocked(flow.WhatsAppNumberID, flow.ID)
	}
	m.flows[flow.ID] = copyFlow(flow)
	m.flowOrder = append(m.flowOrder, flow.ID)
	return copyFlow(flow), nil
}

func (m *MemoryStore) GetFlow(id string) (*models.BotFlow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flow, exists := m.flows[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyFlow(flow), nil
}

func (m *MemoryStore) GetActiveFlow(numberID string) (*models.BotFlow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.flowOrder {
		if f := m.flows[id]; f != nil && f.WhatsAppNumberID == numberID && f.IsActive {
			return copyFlow(f), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListFlows(numberID string) ([]*models.BotFlow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flows := make([]*models.BotFlow, 0)
	for _, id := range m.flowOrder {
		f := m.flows[id]
		if f == nil || (numberID != "" && f.WhatsAppNumberID != numberID) {
			continue
		}
		flows = append(flows, copyFlow(f))
	}
	return flows, nil
}

func (m *MemoryStore) UpdateFlow(flow *models.BotFlow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.flows[flow.ID]; !exists {
		return ErrNotFound
	}
	if flow.IsActive {
		m.deactivateSiblingsLocked(flow.WhatsAppNumberID, flow.ID)
	}
	flow.UpdatedAt = time.Now()
	m.flows[flow.ID] = copyFlow(flow)
	return nil
}

func (m *MemoryStore) DeleteFlow(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.flows[id]; !exists {
		return ErrNotFound
	}
	m.deleteFlowLocked(id)
	return nil
}

func (m *MemoryStore) deleteFlowLocked(id string) {
	delete(m.flows, id)
	m.flowOrder = removeID(m.flowOrder, id)
	for sessionID, s := range m.sessions {
		if s.BotFlowID == id {
			delete(m.sessions, sessionID)
		}
	}
}

func (m *MemoryStore) deactivateSiblingsLocked(numberID, keepID string) {
	for id, f := range m.flows {
		if id != keepID && f.WhatsAppNumberID == numberID && f.IsActive {
			f.IsActive = false
			f.UpdatedAt = time.Now()
		}
	}
}

// Bot sessions

func (m *MemoryStore) CreateSession(session *models.BotSession) (*models.BotSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.IsActive {
		for _, s := range m.sessions {
			if s.IsActive && s.PhoneNumber == session.PhoneNumber && s.BotFlowID == session.BotFlowID {
				return nil, ErrDuplicate
			}
		}
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CurrentStep == "" {
		session.CurrentStep = models.InitialStepKey
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	m.sessions[session.ID] = copySession(session)
	return copySession(session), nil
}

func (m *MemoryStore) GetSession(id string) (*models.BotSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copySession(session), nil
}

func (m *MemoryStore) GetActiveSession(phone, flowID string) (*models.BotSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.IsActive && s.PhoneNumber == phone && s.BotFlowID == flowID {
			return copySession(s), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListSessions(filter SessionFilter) ([]*models.BotSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*models.BotSession, 0)
	for _, s := range m.sessions {
		if filter.BotFlowID != "" && s.BotFlowID != filter.BotFlowID {
			continue
		}
		if filter.PhoneNumber != "" && s.PhoneNumber != filter.PhoneNumber {
			continue
		}
		if filter.IsActive != nil && s.IsActive != *filter.IsActive {
			continue
		}
		if filter.WhatsAppNumberID != "" {
			flow := m.flows[s.BotFlowID]
			if flow == nil || flow.WhatsAppNumberID != filter.WhatsAppNumberID {
				continue
			}
		}
		sessions = append(sessions, copySession(s))
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (m *MemoryStore) UpdateSession(session *models.BotSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; !exists {
		return ErrNotFound
	}
	session.UpdatedAt = time.Now()
	m.sessions[session.ID] = copySession(session)
	return nil
}

// Audit log

func (m *MemoryStore) CreateAuditLog(entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	stored := *entry
	m.audit = append(m.audit, &stored)
	return nil
}

func (m *MemoryStore) ListAuditLogs(filter AuditFilter) ([]*models.AuditLog, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*models.AuditLog, 0)
	// newest first
	for i := len(m.audit) - 1; i >= 0; i-- {
		entry := m.audit[i]
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		if filter.ConversationID != "" && (entry.ConversationID == nil || *entry.ConversationID != filter.ConversationID) {
			continue
		}
		if filter.Action != "" && !strings.Contains(entry.Action, filter.Action) {
			continue
		}
		copied := *entry
		matched = append(matched, &copied)
	}

	total := int64(len(matched))
	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

// Users

func (m *MemoryStore) CreateUser(user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = models.RoleOperator
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	m.users[user.ID] = &stored
	copied := stored
	return &copied, nil
}

func (m *MemoryStore) GetUser(id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[id]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListUsers() ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for _, user := range m.users {
		copied := *user
		users = append(users, &copied)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (m *MemoryStore) UpdateUser(user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; !exists {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now()
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func copyNumber(n *models.WhatsAppNumber) *models.WhatsAppNumber {
	c := *n
	if n.InboxID != nil {
		v := *n.InboxID
		c.InboxID = &v
	}
	if n.LastSeen != nil {
		v := *n.LastSeen
		c.LastSeen = &v
	}
	if n.QRCode != nil {
		v := *n.QRCode
		c.QRCode = &v
	}
	if n.PhoneNumber != nil {
		v := *n.PhoneNumber
		c.PhoneNumber = &v
	}
	c.Flows = nil
	return &c
}

func copyFlow(f *models.BotFlow) *models.BotFlow {
	c := *f
	c.MenuSteps = append([]byte(nil), f.MenuSteps...)
	c.Sessions = nil
	return &c
}

func copySession(s *models.BotSession) *models.BotSession {
	c := *s
	c.Context = append([]byte(nil), s.Context...)
	if s.ConversationID != nil {
		v := *s.ConversationID
		c.ConversationID = &v
	}
	return &c
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
