package services

import (
	"testing"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	result BotResult
	calls  []string
}

func (b *fakeBot) ProcessMessage(phone, text, numberID, instanceID, token string) BotResult {
	b.calls = append(b.calls, phone+":"+text)
	return b.result
}

type routerFixture struct {
	store  *storage.MemoryStore
	inbox  *fakeInbox
	bot    *fakeBot
	events *fakePublisher
	router *Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	f := &routerFixture{
		store:  store,
		inbox:  newFakeInbox(),
		bot:    &fakeBot{result: notHandledByBot},
		events: &fakePublisher{},
	}
	f.router = NewRouter(store, f.bot, f.inbox, f.events, NewAuditor(store))
	return f
}

func (f *routerFixture) addNumber(t *testing.T, instanceID string, inboxID *int) *models.WhatsAppNumber {
	t.Helper()
	number, err := f.store.CreateNumber(&models.WhatsAppNumber{InstanceID: instanceID, Token: "tok", InboxID: inboxID})
	require.NoError(t, err)
	return number
}

func (f *routerFixture) auditCount(t *testing.T) int64 {
	t.Helper()
	_, total, err := f.store.ListAuditLogs(storage.AuditFilter{})
	require.NoError(t, err)
	return total
}

func TestHandleMessageIgnoresOwnMessages(t *testing.T) {
	f := newRouterFixture(t)
	f.addNumber(t, "inst-1", nil)

	result := f.router.HandleMessage(models.InboundMessage{Phone: customer, Text: "oi", FromMe: true, InstanceID: "inst-1"})

	assert.Equal(t, Result{Success: true}, result)
	assert.Empty(t, f.bot.calls)
	assert.Empty(t, f.inbox.resolved)
	assert.Empty(t, f.inbox.created())
	assert.Zero(t, f.auditCount(t))
}

func TestHandleMessageWithoutPhoneIsAcknowledged(t *testing.T) {
	f := newRouterFixture(t)

	result := f.router.HandleZapi("inst-1", []byte(`{"type":"ReceivedCallback","text":{"message":"oi"}}`))

	assert.True(t, result.Success)
	assert.Empty(t, f.inbox.created())
	assert.Zero(t, f.auditCount(t))
}

func TestHandleMessageBotTakesPrecedence(t *testing.T) {
	f := newRouterFixture(t)
	inboxID := 3
	f.addNumber(t, "inst-1", &inboxID)
	f.bot.result = handledByBot

	result := f.router.HandleMessage(models.InboundMessage{Phone: customer, Text: "1", InstanceID: "inst-1", Provider: models.ProviderZAPI})

	assert.Equal(t, Result{Success: true, HandledByBot: true}, result)
	assert.Equal(t, []string{customer + ":1"}, f.bot.calls)
	assert.Empty(t, f.inbox.resolved)
	assert.Empty(t, f.inbox.created())
	assert.Empty(t, f.events.messages)
}

func TestTwilioMessageResolvesRegisteredNumber(t *testing.T) {
	f := newRouterFixture(t)
	inboxID := 3
	f.addNumber(t, "+14155238886", &inboxID)
	f.bot.result = handledByBot

	msg := TwilioInbound{From: "whatsapp:+5511999999999", To: "whatsapp:+14155238886", Body: "1"}.Normalize()
	result := f.router.HandleMessage(msg)

	assert.Equal(t, Result{Success: true, HandledByBot: true}, result)
	assert.Equal(t, []string{"+5511999999999:1"}, f.bot.calls)
}

func TestHandleMessageGoesToInboxWithoutFlow(t *testing.T) {
	f := newRouterFixture(t)
	inboxID := 3
	f.addNumber(t, "inst-1", &inboxID)

	result := f.router.HandleMessage(models.InboundMessage{Phone: customer, Text: "preciso de ajuda", InstanceID: "inst-1", Provider: models.ProviderZAPI})

	assert.Equal(t, Result{Success: true}, result)
	assert.Equal(t, []string{customer + "@3"}, f.inbox.resolved)
	created := f.inbox.created()
	require.Len(t, created, 1)
	assert.Equal(t, createdMessage{ConversationID: 42, Content: "preciso de ajuda", Incoming: true}, created[0])
	require.Len(t, f.events.messages, 1)
	assert.Equal(t, 42, f.events.messages[0].ConversationID)

	logs, _, err := f.store.ListAuditLogs(storage.AuditFilter{Action: models.ActionZAPIMessageReceived})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].ConversationID)
	assert.Equal(t, "42", *logs[0].ConversationID)
}

func TestHandleMessageTransferGoesToInbox(t *testing.T) {
	f := newRouterFixture(t)
	inboxID := 3
	f.addNumber(t, "inst-1", &inboxID)
	f.bot.result = handedToHuman

	result := f.router.HandleMessage(models.InboundMessage{Phone: customer, Text: "2", InstanceID: "inst-1"})

	assert.Equal(t, Result{Success: true}, result)
	assert.Len(t, f.inbox.created(), 1)
}

func TestHandleMessageBackfillsInboxAndMarksConnected(t *testing.T) {
	f := newRouterFixture(t)
	number := f.addNumber(t, "inst-1", nil)
	f.inbox.firstInboxID = 9

	f.router.HandleMessage(models.InboundMessage{Phone: customer, Text: "oi", InstanceID: "inst-1"})

	stored, err := f.store.GetNumber(number.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.InboxID)
	assert.Equal(t, 9, *stored.InboxID)
	assert.True(t, stored.IsConnected)
	assert.NotNil(t, stored.LastSeen)
	assert.Equal(t, []string{customer + "@9"}, f.inbox.resolved)
}

func TestHandleMessageUnknownInstanceUsesFirstInbox(t *testing.T) {
	f := newRouterFixture(t)
	f.inbox.firstInboxID = 5

	result := f.router.HandleMessage(models.InboundMessage{Phone: customer, Text: "oi", InstanceID: "ghost"})

	assert.True(t, result.Success)
	assert.Empty(t, f.bot.calls)
	assert.Equal(t, []string{customer + "@5"}, f.inbox.resolved)
}

func TestHandleMessageWithoutInboxIsAcknowledged(t *testing.T) {
	f := newRouterFixture(t)
	f.inbox.firstInboxID = 0

	result := f.router.HandleMessage(models.InboundMessage{Phone: customer, Text: "oi"})

	assert.Equal(t, Result{Success: true}, result)
	assert.Empty(t, f.inbox.created())
}

func TestHandleMessageFallsBackToContactInbox(t *testing.T) {
	f := newRouterFixture(t)
	f.inbox.resolveErr = ErrConversationCreate

	result := f.router.HandleMessage(models.InboundMessage{Phone: customer, Text: "oi", MediaURL: "https://cdn/x.jpg"})

	assert.True(t, result.Success)
	assert.Equal(t, 1, f.inbox.viaLink)
	created := f.inbox.created()
	require.Len(t, created, 1)
	assert.Equal(t, "https://cdn/x.jpg", created[0].MediaURL)
}

func TestHandleMessageFallsBackWhenMessageCreationFails(t *testing.T) {
	f := newRouterFixture(t)
	f.inbox.createErr = ErrChatwootUnavailable

	result := f.router.HandleMessage(models.InboundMessage{Phone: customer, Text: "oi"})

	assert.Equal(t, Result{Success: true}, result)
	assert.Equal(t, []string{customer + "@1"}, f.inbox.resolved)
	assert.Equal(t, 1, f.inbox.viaLink)
	created := f.inbox.created()
	require.Len(t, created, 1)
	assert.Equal(t, "oi", created[0].Content)
	require.Len(t, f.events.messages, 1)
	assert.Equal(t, 42, f.events.messages[0].ConversationID)

	logs, _, err := f.store.ListAuditLogs(storage.AuditFilter{Action: models.ActionZAPIMessageError})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestHandleZapiRoutesMessages(t *testing.T) {
	f := newRouterFixture(t)
	inboxID := 3
	f.addNumber(t, "inst-1", &inboxID)

	body := []byte(`{"type":"ReceivedCallback","instanceId":"inst-1","phone":"5511999999999","fromMe":false,"senderName":"Ana","text":{"message":"Olá"}}`)
	result := f.router.HandleZapi("", body)

	assert.Equal(t, Result{Success: true}, result)
	assert.Equal(t, []string{customer + ":Olá"}, f.bot.calls)
	created := f.inbox.created()
	require.Len(t, created, 1)
	assert.Equal(t, "Olá", created[0].Content)
}

func TestHandleZapiStatusUpdatesNumber(t *testing.T) {
	f := newRouterFixture(t)
	number := f.addNumber(t, "inst-1", nil)

	result := f.router.HandleZapi("inst-1", []byte(`{"type":"ConnectedCallback","connected":true}`))
	require.True(t, result.Success)

	stored, err := f.store.GetNumber(number.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsConnected)

	f.router.HandleZapi("inst-1", []byte(`{"status":"disconnected"}`))
	stored, err = f.store.GetNumber(number.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsConnected)

	logs, _, err := f.store.ListAuditLogs(storage.AuditFilter{Action: models.ActionZAPIStatusUpdate})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestHandleZapiQRCodeStoresCode(t *testing.T) {
	f := newRouterFixture(t)
	number := f.addNumber(t, "inst-1", nil)
	number.IsConnected = true
	require.NoError(t, f.store.UpdateNumber(number))

	result := f.router.HandleZapi("inst-1", []byte(`{"qrCode":"data:image/png;base64,AAAA"}`))
	require.True(t, result.Success)

	stored, err := f.store.GetNumber(number.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.QRCode)
	assert.Equal(t, "data:image/png;base64,AAAA", *stored.QRCode)
	assert.False(t, stored.IsConnected)
}

func TestHandleZapiToleratesGarbage(t *testing.T) {
	f := newRouterFixture(t)

	for _, body := range []string{``, `not json`, `[]`, `{}`, `{"foo":"bar"}`, `null`} {
		result := f.router.HandleZapi("", []byte(body))
		assert.True(t, result.Success, body)
	}
	assert.Empty(t, f.inbox.created())
}

func TestHandleZapiRecoversFromPanics(t *testing.T) {
	f := newRouterFixture(t)
	f.router.inbox = nil

	result := f.router.HandleZapi("", []byte(`{"type":"ReceivedCallback","phone":"5511999999999","text":{"message":"oi"}}`))

	assert.False(t, result.Success)
	assert.Equal(t, "Erro ao processar webhook", result.Error)
}
