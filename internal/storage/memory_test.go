package storage

import (
	"testing"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberRegistry(t *testing.T) {
	store := NewMemoryStore()

	first, err := store.CreateNumber(&models.WhatsAppNumber{InstanceID: "inst-1", Token: "tok"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, models.ProviderZAPI, first.Provider)

	_, err = store.CreateNumber(&models.WhatsAppNumber{InstanceID: "inst-1", Token: "other"})
	assert.ErrorIs(t, err, ErrDuplicate)

	inbox := 9
	second, err := store.CreateNumber(&models.WhatsAppNumber{InstanceID: "inst-2", Token: "tok", InboxID: &inbox, IsConnected: true})
	require.NoError(t, err)

	got, err := store.GetFirstNumber()
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = store.GetFirstConnectedNumber()
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	got, err = store.GetNumberByInboxID(9)
	require.NoError(t, err)
	assert.Equal(t, "inst-2", got.InstanceID)

	_, err = store.GetNumberByInstanceID("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNumberCopiesAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	created, err := store.CreateNumber(&models.WhatsAppNumber{InstanceID: "inst-1", Token: "tok"})
	require.NoError(t, err)

	created.Name = "changed"
	got, err := store.GetNumber(created.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Name)
}

func TestDeleteNumberCascades(t *testing.T) {
	store := NewMemoryStore()
	number, err := store.CreateNumber(&models.WhatsAppNumber{InstanceID: "inst-1", Token: "tok"})
	require.NoError(t, err)
	flow, err := store.CreateFlow(&models.BotFlow{Name: "menu", WhatsAppNumberID: number.ID, IsActive: true})
	require.NoError(t, err)
	session, err := store.CreateSession(&models.BotSession{PhoneNumber: "5511", BotFlowID: flow.ID, IsActive: true})
	require.NoError(t, err)

	require.NoError(t, store.DeleteNumber(number.ID))

	_, err = store.GetFlow(flow.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetSession(session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteNumber(number.ID), ErrNotFound)
}

func TestSingleActiveFlowPerNumber(t *testing.T) {
	store := NewMemoryStore()

	a, err := store.CreateFlow(&models.BotFlow{Name: "a", WhatsAppNumberID: "n1", IsActive: true})
	require.NoError(t, err)
	b, err := store.CreateFlow(&models.BotFlow{Name: "b", WhatsAppNumberID: "n1", IsActive: true})
	require.NoError(t, err)
	other, err := store.CreateFlow(&models.BotFlow{Name: "c", WhatsAppNumberID: "n2", IsActive: true})
	require.NoError(t, err)

	active, err := store.GetActiveFlow("n1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)

	stored, _ := store.GetFlow(a.ID)
	assert.False(t, stored.IsActive)
	stored, _ = store.GetFlow(other.ID)
	assert.True(t, stored.IsActive)

	a.IsActive = true
	require.NoError(t, store.UpdateFlow(a))
	active, err = store.GetActiveFlow("n1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, active.ID)

	flows, err := store.ListFlows("n1")
	require.NoError(t, err)
	assert.Len(t, flows, 2)
}

func TestSingleActiveSession(t *testing.T) {
	store := NewMemoryStore()

	session, err := store.CreateSession(&models.BotSession{PhoneNumber: "5511", BotFlowID: "f1", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, models.InitialStepKey, session.CurrentStep)

	_, err = store.CreateSession(&models.BotSession{PhoneNumber: "5511", BotFlowID: "f1", IsActive: true})
	assert.ErrorIs(t, err, ErrDuplicate)

	session.IsActive = false
	require.NoError(t, store.UpdateSession(session))

	_, err = store.GetActiveSession("5511", "f1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.CreateSession(&models.BotSession{PhoneNumber: "5511", BotFlowID: "f1", IsActive: true})
	assert.NoError(t, err)
}

func TestAuditLogFilters(t *testing.T) {
	store := NewMemoryStore()
	conv := "42"
	require.NoError(t, store.CreateAuditLog(&models.AuditLog{UserID: "u1", Action: models.ActionLogin}))
	require.NoError(t, store.CreateAuditLog(&models.AuditLog{UserID: models.SystemUserID, Action: models.ActionZAPIMessageReceived, ConversationID: &conv}))
	require.NoError(t, store.CreateAuditLog(&models.AuditLog{UserID: models.SystemUserID, Action: models.ActionZAPIStatusUpdate}))

	logs, total, err := store.ListAuditLogs(AuditFilter{Action: "ZAPI"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ActionZAPIStatusUpdate, logs[0].Action)

	logs, total, err = store.ListAuditLogs(AuditFilter{ConversationID: "42"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, models.ActionZAPIMessageReceived, logs[0].Action)

	logs, total, err = store.ListAuditLogs(AuditFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionZAPIMessageReceived, logs[0].Action)

	logs, _, err = store.ListAuditLogs(AuditFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestUsersByEmail(t *testing.T) {
	store := NewMemoryStore()
	user, err := store.CreateUser(&models.User{Name: "Ana", Email: "ana@example.com", PasswordHash: "x", Active: true})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOperator, user.Role)

	_, err = store.CreateUser(&models.User{Email: "ANA@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := store.GetUserByEmail("Ana@Example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	assert.ErrorIs(t, store.UpdateUser(&models.User{ID: "missing"}), ErrNotFound)
}
