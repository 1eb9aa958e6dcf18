package services

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Token  string
	Body   map[string]any
}

// chatwootServer serves canned bodies per "METHOD /path" and records every request
type chatwootServer struct {
	*httptest.Server
	mu       sync.Mutex
	routes   map[string]func() (int, string)
	requests []recordedRequest
}

func newChatwootServer(t *testing.T) *chatwootServer {
	t.Helper()
	s := &chatwootServer{routes: make(map[string]func() (int, string))}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Token: r.Header.Get("api_access_token")}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		s.mu.Lock()
		s.requests = append(s.requests, rec)
		route, ok := s.routes[r.Method+" "+r.URL.Path]
		s.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
			return
		}
		status, body := route()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *chatwootServer) on(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+path] = func() (int, string) { return status, body }
}

func (s *chatwootServer) calls(method, path string) []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedRequest
	for _, r := range s.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func newTestChatwoot(t *testing.T, s *chatwootServer) *ChatwootClient {
	t.Helper()
	client, err := NewChatwootClient(config.ChatwootConfig{BaseURL: s.URL, APIToken: "secret", AccountID: "2"}, "55")
	require.NoError(t, err)
	return client
}

const accountPath = "/api/v1/accounts/2"

func TestNewChatwootClientRequiresCredentials(t *testing.T) {
	_, err := NewChatwootClient(config.ChatwootConfig{BaseURL: "http://x"}, "55")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestListInboxesUnwrapsPayload(t *testing.T) {
	s := newChatwootServer(t)
	s.on(http.MethodGet, accountPath+"/inboxes", 200, `{"payload":[{"id":3,"name":"WhatsApp"},{"id":4,"name":"Site"}]}`)
	client := newTestChatwoot(t, s)

	inboxes, err := client.ListInboxes()

	require.NoError(t, err)
	assert.Equal(t, []Inbox{{ID: 3, Name: "WhatsApp"}, {ID: 4, Name: "Site"}}, inboxes)
	calls := s.calls(http.MethodGet, accountPath+"/inboxes")
	require.Len(t, calls, 1)
	assert.Equal(t, "secret", calls[0].Token)

	first, err := client.FirstInboxID()
	require.NoError(t, err)
	assert.Equal(t, 3, first)
}

func TestListInboxesNotFoundNamesConfiguration(t *testing.T) {
	s := newChatwootServer(t)
	client := newTestChatwoot(t, s)

	_, err := client.ListInboxes()

	require.ErrorIs(t, err, ErrChatwootNotFound)
	assert.Contains(t, err.Error(), s.URL)
	assert.Contains(t, err.Error(), "account 2")
}

func TestServerErrorsAreUnavailable(t *testing.T) {
	s := newChatwootServer(t)
	s.on(http.MethodGet, accountPath+"/conversations", 503, `{"error":"down"}`)
	client := newTestChatwoot(t, s)

	_, err := client.ListConversations(3, "open")

	assert.ErrorIs(t, err, ErrChatwootUnavailable)
	calls := s.calls(http.MethodGet, accountPath+"/conversations")
	require.Len(t, calls, 1)
	assert.Equal(t, "inbox_id=3&status=open", calls[0].Query)
}

func TestUnreachableChatwootIsUnavailable(t *testing.T) {
	s := newChatwootServer(t)
	client := newTestChatwoot(t, s)
	s.Close()

	_, err := client.ListAgents()

	assert.ErrorIs(t, err, ErrChatwootUnavailable)
}

func TestFindOrCreateConversationReusesExisting(t *testing.T) {
	s := newChatwootServer(t)
	s.on(http.MethodGet, accountPath+"/conversations", 200,
		`{"data":{"payload":[{"id":90,"inbox_id":3,"meta":{"sender":{"phone_number":"+5511999999999"}}}]}}`)
	client := newTestChatwoot(t, s)

	id, err := client.FindOrCreateConversation("5511999999999", 3, "Ana")

	require.NoError(t, err)
	assert.Equal(t, 90, id)
	assert.Empty(t, s.calls(http.MethodPost, accountPath+"/contacts"))
}

func TestFindOrCreateConversationCreatesContactAndConversation(t *testing.T) {
	s := newChatwootServer(t)
	s.on(http.MethodGet, accountPath+"/conversations", 200, `{"data":{"payload":[]}}`)
	s.on(http.MethodGet, accountPath+"/contacts/search", 200, `{"payload":[]}`)
	s.on(http.MethodPost, accountPath+"/contacts", 200, `{"payload":{"contact":{"id":15,"name":"Ana"}}}`)
	s.on(http.MethodGet, accountPath+"/contacts/15", 200, `{"payload":{"id":15,"contact_inboxes":[]}}`)
	s.on(http.MethodPost, accountPath+"/contacts/15/contact_inboxes", 200, `{"id":5,"source_id":"contact:15","inbox_id":3}`)
	s.on(http.MethodPost, accountPath+"/conversations", 200, `{"id":91}`)
	client := newTestChatwoot(t, s)

	id, err := client.FindOrCreateConversation("11999999999", 3, "Ana")

	require.NoError(t, err)
	assert.Equal(t, 91, id)

	contacts := s.calls(http.MethodPost, accountPath+"/contacts")
	require.Len(t, contacts, 1)
	assert.Equal(t, "+5511999999999", contacts[0].Body["phone_number"])
	assert.Equal(t, "Ana", contacts[0].Body["name"])

	created := s.calls(http.MethodPost, accountPath+"/conversations")
	require.Len(t, created, 1)
	assert.Equal(t, "contact:15", created[0].Body["source_id"])
}

func TestSendMessagePostsOutgoing(t *testing.T) {
	s := newChatwootServer(t)
	s.on(http.MethodPost, accountPath+"/conversations/42/messages", 200,
		`{"id":7,"content":"Olá","message_type":1,"private":true}`)
	client := newTestChatwoot(t, s)

	message, err := client.SendMessage(42, "Olá", true)

	require.NoError(t, err)
	assert.Equal(t, 7, message.ID)
	assert.True(t, message.MessageType.IsOutgoing())
	calls := s.calls(http.MethodPost, accountPath+"/conversations/42/messages")
	require.Len(t, calls, 1)
	assert.Equal(t, "outgoing", calls[0].Body["message_type"])
	assert.Equal(t, true, calls[0].Body["private"])
}

func TestSendWithAttachmentFallsBackToLink(t *testing.T) {
	s := newChatwootServer(t)
	attempts := 0
	s.mu.Lock()
	s.routes[http.MethodPost+" "+accountPath+"/conversations/42/messages"] = func() (int, string) {
		attempts++
		if attempts < 2 {
			return 422, `{"message":"attachment rejected"}`
		}
		return 200, `{"id":8,"content":"ok","message_type":0}`
	}
	s.mu.Unlock()
	client := newTestChatwoot(t, s)

	// the media url points at the fake server, which answers 404, so the
	// inline download fails and the link is posted as text
	message, err := client.CreateInboundMessage(42, "foto", s.URL+"/media/x.jpg")

	require.NoError(t, err)
	assert.Equal(t, 8, message.ID)
	calls := s.calls(http.MethodPost, accountPath+"/conversations/42/messages")
	require.Len(t, calls, 2)
	assert.Equal(t, "foto\n\n📎 "+s.URL+"/media/x.jpg", calls[1].Body["content"])
	assert.Equal(t, "incoming", calls[1].Body["message_type"])
}
