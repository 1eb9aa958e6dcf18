package services

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/gofiber/fiber/v2"
)

// Inbox is a Chatwoot inbox
type Inbox struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	ChannelType string `json:"channel_type,omitempty"`
}

// ChatwootSender describes a message author or a conversation contact
type ChatwootSender struct {
	ID          int    `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Identifier  string `json:"identifier,omitempty"`
	Email       string `json:"email,omitempty"`
}

type ConversationMeta struct {
	Sender      ChatwootSender  `json:"sender"`
	Assignee    *ChatwootSender `json:"assignee,omitempty"`
	PhoneNumber string          `json:"phone_number,omitempty"`
}

// Conversation is a Chatwoot conversation
type Conversation struct {
	ID             int              `json:"id"`
	InboxID        int              `json:"inbox_id"`
	Status         string           `json:"status"`
	Meta           ConversationMeta `json:"meta"`
	UnreadCount    int              `json:"unread_count,omitempty"`
	LastActivityAt json.RawMessage  `json:"last_activity_at,omitempty"`
	CreatedAt      json.RawMessage  `json:"created_at,omitempty"`
}

// ContactPhone returns the phone stored on the conversation's contact
func (c *Conversation) ContactPhone() string {
	switch {
	case c.Meta.Sender.PhoneNumber != "":
		return c.Meta.Sender.PhoneNumber
	case c.Meta.Sender.Identifier != "":
		return c.Meta.Sender.Identifier
	}
	return c.Meta.PhoneNumber
}

// MessageType holds Chatwoot's message_type, which arrives either as a
// number (0 incoming, 1 outgoing) or as a string.
type MessageType string

func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = MessageType(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message_type: %w", err)
	}
	*t = MessageType(n.String())
	return nil
}

// IsOutgoing matches the numeric and string forms of the outgoing sentinel
func (t MessageType) IsOutgoing() bool {
	return t == "1" || strings.EqualFold(string(t), "outgoing")
}

type Attachment struct {
	ID       int    `json:"id,omitempty"`
	FileType string `json:"file_type,omitempty"`
	DataURL  string `json:"data_url,omitempty"`
	ThumbURL string `json:"thumb_url,omitempty"`
}

// Message is a Chatwoot message
type Message struct {
	ID             int             `json:"id"`
	Content        string          `json:"content"`
	MessageType    MessageType     `json:"message_type"`
	Private        bool            `json:"private"`
	ConversationID int             `json:"conversation_id,omitempty"`
	Sender         *ChatwootSender `json:"sender,omitempty"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	CreatedAt      json.RawMessage `json:"created_at,omitempty"`
}

type Contact struct {
	ID             int            `json:"id"`
	Name           string         `json:"name"`
	PhoneNumber    string         `json:"phone_number"`
	Identifier     string         `json:"identifier"`
	ContactInboxes []ContactInbox `json:"contact_inboxes,omitempty"`
}

type ContactInbox struct {
	ID       int    `json:"id,omitempty"`
	SourceID string `json:"source_id"`
	InboxID  int    `json:"inbox_id,omitempty"`
	Inbox    *Inbox `json:"inbox,omitempty"`
}

// InboxRef returns the inbox id whichever way Chatwoot nested it
func (ci ContactInbox) InboxRef() int {
	if ci.InboxID != 0 {
		return ci.InboxID
	}
	if ci.Inbox != nil {
		return ci.Inbox.ID
	}
	return 0
}

type Agent struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	AvailabilityStatus string `json:"availability_status,omitempty"`
}

// OutgoingAttachment is the attachment shape accepted on message creation
type OutgoingAttachment struct {
	FileType      string `json:"file_type"`
	RemoteFileURL string `json:"remote_file_url,omitempty"`
	Data          string `json:"data,omitempty"`
	FileName      string `json:"file_name,omitempty"`
}

type createMessageRequest struct {
	Content     string               `json:"content"`
	MessageType string               `json:"message_type"`
	Private     bool                 `json:"private"`
	Attachments []OutgoingAttachment `json:"attachments,omitempty"`
}

// ChatwootClient wraps the Chatwoot application API
type ChatwootClient struct {
	baseURL            string
	token              string
	accountID          string
	defaultCountryCode string
}

// NewChatwootClient validates the configuration and builds a client
func NewChatwootClient(cfg config.ChatwootConfig, defaultCountryCode string) (*ChatwootClient, error) {
	if cfg.BaseURL == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("%w: CHATWOOT_API_BASE_URL and CHATWOOT_API_TOKEN are required", ErrMissingCredentials)
	}
	accountID := cfg.AccountID
	if accountID == "" {
		accountID = "1"
	}
	return &ChatwootClient{
		baseURL:            strings.TrimRight(cfg.BaseURL, "/") + "/api/v1",
		token:              cfg.APIToken,
		accountID:          accountID,
		defaultCountryCode: defaultCountryCode,
	}, nil
}

func (c *ChatwootClient) accountURL(path string) string {
	return fmt.Sprintf("%s/accounts/%s%s", c.baseURL, c.accountID, path)
}

func (c *ChatwootClient) call(method, path string, payload any) apiCall {
	return apiCall{
		method:  method,
		url:     c.accountURL(path),
		headers: map[string]string{"api_access_token": c.token},
		payload: payload,
	}
}

// send executes a call and maps transport failures and 5xx to
// ErrChatwootUnavailable. Other non-2xx statuses come back as plain errors.
func (c *ChatwootClient) send(req apiCall) (apiResponse, error) {
	resp, err := req.do()
	if err != nil {
		if isTimeout(err) {
			return resp, fmt.Errorf("%w: %s %s timed out", ErrChatwootUnavailable, req.method, req.url)
		}
		return resp, fmt.Errorf("%w: %s %s: %v", ErrChatwootUnavailable, req.method, req.url, err)
	}
	if resp.status >= 500 {
		return resp, fmt.Errorf("%w: %s %s returned %d", ErrChatwootUnavailable, req.method, req.url, resp.status)
	}
	if !resp.ok() {
		return resp, fmt.Errorf("chatwoot %s %s returned %d: %s", req.method, req.url, resp.status, apiErrorMessage(resp.body))
	}
	return resp, nil
}

// unwrapList extracts a JSON array from data.payload, payload or the body itself
func unwrapList(body []byte, out any) error {
	var envelope struct {
		Data *struct {
			Payload json.RawMessage `json:"payload"`
		} `json:"data"`
		Payload json.RawMessage `json:"payload"`
	}
	candidates := make([]json.RawMessage, 0, 3)
	if json.Unmarshal(body, &envelope) == nil {
		if envelope.Data != nil && isJSONArray(envelope.Data.Payload) {
			candidates = append(candidates, envelope.Data.Payload)
		}
		if isJSONArray(envelope.Payload) {
			candidates = append(candidates, envelope.Payload)
		}
	}
	if isJSONArray(body) {
		candidates = append(candidates, body)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("unrecognized list envelope")
	}
	return json.Unmarshal(candidates[0], out)
}

// unwrapObject extracts an object from payload or the body itself
func unwrapObject(body []byte, out any) error {
	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if json.Unmarshal(body, &envelope) == nil && isJSONObject(envelope.Payload) {
		return json.Unmarshal(envelope.Payload, out)
	}
	if isJSONObject(body) {
		return json.Unmarshal(body, out)
	}
	return fmt.Errorf("unrecognized object envelope")
}

func isJSONArray(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "[")
}

func isJSONObject(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}

// ListInboxes returns the account's inboxes. A 404 means misconfiguration
// and is reported with the base URL and account id.
func (c *ChatwootClient) ListInboxes() ([]Inbox, error) {
	resp, err := c.send(c.call(fiber.MethodGet, "/inboxes", nil))
	if err != nil {
		if resp.status == fiber.StatusNotFound {
			return nil, fmt.Errorf("%w: inboxes not found at %s for account %s, check CHATWOOT_API_BASE_URL and CHATWOOT_ACCOUNT_ID",
				ErrChatwootNotFound, c.baseURL, c.accountID)
		}
		return nil, err
	}
	var inboxes []Inbox
	if err := unwrapList(resp.body, &inboxes); err != nil {
		log.Printf("⚠️  Chatwoot inboxes: %v", err)
		return []Inbox{}, nil
	}
	return inboxes, nil
}

// FirstInboxID returns the id of the first inbox of the account
func (c *ChatwootClient) FirstInboxID() (int, error) {
	inboxes, err := c.ListInboxes()
	if err != nil {
		return 0, err
	}
	if len(inboxes) == 0 {
		return 0, ErrNoInbox
	}
	return inboxes[0].ID, nil
}

// ListConversations lists conversations, optionally filtered by inbox and status
func (c *ChatwootClient) ListConversations(inboxID int, status string) ([]Conversation, error) {
	query := url.Values{}
	if inboxID != 0 {
		query.Set("inbox_id", strconv.Itoa(inboxID))
	}
	if status != "" {
		query.Set("status", status)
	}
	path := "/conversations"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	req := c.call(fiber.MethodGet, path, nil)
	req.timeout = listHTTPTimeout

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	var conversations []Conversation
	if err := unwrapList(resp.body, &conversations); err != nil {
		log.Printf("⚠️  Chatwoot conversations: %v", err)
		return []Conversation{}, nil
	}
	return conversations, nil
}

func (c *ChatwootClient) GetConversation(id int) (*Conversation, error) {
	resp, err := c.send(c.call(fiber.MethodGet, fmt.Sprintf("/conversations/%d", id), nil))
	if err != nil {
		return nil, err
	}
	var conversation Conversation
	if err := unwrapObject(resp.body, &conversation); err != nil {
		return nil, fmt.Errorf("decode conversation %d: %w", id, err)
	}
	return &conversation, nil
}

func (c *ChatwootClient) ListMessages(conversationID int) ([]Message, error) {
	resp, err := c.send(c.call(fiber.MethodGet, fmt.Sprintf("/conversations/%d/messages", conversationID), nil))
	if err != nil {
		return nil, err
	}
	var messages []Message
	if err := unwrapList(resp.body, &messages); err != nil {
		log.Printf("⚠️  Chatwoot messages of %d: %v", conversationID, err)
		return []Message{}, nil
	}
	return messages, nil
}

func (c *ChatwootClient) createMessage(conversationID int, body createMessageRequest) (*Message, error) {
	resp, err := c.send(c.call(fiber.MethodPost, fmt.Sprintf("/conversations/%d/messages", conversationID), body))
	if err != nil {
		return nil, err
	}
	var message Message
	if err := unwrapObject(resp.body, &message); err != nil {
		return nil, fmt.Errorf("decode created message: %w", err)
	}
	return &message, nil
}

// SendMessage posts an outgoing (agent-side) message
func (c *ChatwootClient) SendMessage(conversationID int, content string, private bool) (*Message, error) {
	return c.createMessage(conversationID, createMessageRequest{
		Content:     content,
		MessageType: "outgoing",
		Private:     private,
	})
}

// CreateIncomingMessage posts a message as if the contact had sent it
func (c *ChatwootClient) CreateIncomingMessage(conversationID int, content string) (*Message, error) {
	return c.createMessage(conversationID, createMessageRequest{
		Content:     content,
		MessageType: "incoming",
	})
}

// AssignConversation assigns the conversation to an agent
func (c *ChatwootClient) AssignConversation(conversationID, agentID int) error {
	_, err := c.send(c.call(fiber.MethodPost, fmt.Sprintf("/conversations/%d/assignments", conversationID),
		map[string]int{"assignee_id": agentID}))
	return err
}

// TransferConversationToInbox moves the conversation to another inbox
func (c *ChatwootClient) TransferConversationToInbox(conversationID, inboxID int) error {
	_, err := c.send(c.call(fiber.MethodPost, fmt.Sprintf("/conversations/%d/transfers", conversationID),
		map[string]int{"inbox_id": inboxID}))
	return err
}

func (c *ChatwootClient) UpdateConversationStatus(conversationID int, status string) error {
	_, err := c.send(c.call(fiber.MethodPost, fmt.Sprintf("/conversations/%d/toggle_status", conversationID),
		map[string]string{"status": status}))
	return err
}

func (c *ChatwootClient) ListAgents() ([]Agent, error) {
	resp, err := c.send(c.call(fiber.MethodGet, "/agents", nil))
	if err != nil {
		return nil, err
	}
	var agents []Agent
	if err := unwrapList(resp.body, &agents); err != nil {
		log.Printf("⚠️  Chatwoot agents: %v", err)
		return []Agent{}, nil
	}
	return agents, nil
}

// Contacts

func (c *ChatwootClient) SearchContacts(query string) ([]Contact, error) {
	resp, err := c.send(c.call(fiber.MethodGet, "/contacts/search?q="+url.QueryEscape(query), nil))
	if err != nil {
		return nil, err
	}
	var contacts []Contact
	if err := unwrapList(resp.body, &contacts); err != nil {
		return []Contact{}, nil
	}
	return contacts, nil
}

func (c *ChatwootClient) GetContact(id int) (*Contact, error) {
	resp, err := c.send(c.call(fiber.MethodGet, fmt.Sprintf("/contacts/%d", id), nil))
	if err != nil {
		return nil, err
	}
	var contact Contact
	if err := unwrapObject(resp.body, &contact); err != nil {
		return nil, fmt.Errorf("decode contact %d: %w", id, err)
	}
	return &contact, nil
}

func (c *ChatwootClient) CreateContact(name, phone string) (*Contact, error) {
	resp, err := c.send(c.call(fiber.MethodPost, "/contacts", map[string]string{
		"identifier":   phone,
		"name":         name,
		"phone_number": phone,
	}))
	if err != nil {
		return nil, err
	}
	// Chatwoot answers {payload: {contact: {...}}} on some versions
	var nested struct {
		Payload struct {
			Contact *Contact `json:"contact"`
		} `json:"payload"`
	}
	if json.Unmarshal(resp.body, &nested) == nil && nested.Payload.Contact != nil && nested.Payload.Contact.ID != 0 {
		return nested.Payload.Contact, nil
	}
	var contact Contact
	if err := unwrapObject(resp.body, &contact); err != nil {
		return nil, fmt.Errorf("decode created contact: %w", err)
	}
	return &contact, nil
}

// CreateContactInbox links a contact to an inbox. An empty sourceID lets
// Chatwoot pick one.
func (c *ChatwootClient) CreateContactInbox(contactID, inboxID int, sourceID string) (*ContactInbox, error) {
	body := map[string]any{"inbox_id": inboxID}
	if sourceID != "" {
		body["source_id"] = sourceID
	}
	resp, err := c.send(c.call(fiber.MethodPost, fmt.Sprintf("/contacts/%d/contact_inboxes", contactID), body))
	if err != nil {
		return nil, err
	}
	var ci ContactInbox
	if err := unwrapObject(resp.body, &ci); err != nil {
		return nil, fmt.Errorf("decode contact inbox: %w", err)
	}
	return &ci, nil
}

func (c *ChatwootClient) ListContactConversations(contactID int) ([]Conversation, error) {
	resp, err := c.send(c.call(fiber.MethodGet, fmt.Sprintf("/contacts/%d/conversations", contactID), nil))
	if err != nil {
		return nil, err
	}
	var conversations []Conversation
	if err := unwrapList(resp.body, &conversations); err != nil {
		return []Conversation{}, nil
	}
	return conversations, nil
}

// CreateConversation opens a conversation for a contact-inbox source id
func (c *ChatwootClient) CreateConversation(sourceID string, inboxID, contactID int) (int, error) {
	body := map[string]any{"source_id": sourceID, "inbox_id": inboxID}
	if contactID != 0 {
		body["contact_id"] = contactID
	}
	resp, err := c.send(c.call(fiber.MethodPost, "/conversations", body))
	if err != nil {
		return 0, err
	}
	var created struct {
		ID           int `json:"id"`
		Conversation *struct {
			ID int `json:"id"`
		} `json:"conversation"`
	}
	if err := unwrapObject(resp.body, &created); err != nil {
		return 0, fmt.Errorf("decode created conversation: %w", err)
	}
	switch {
	case created.ID != 0:
		return created.ID, nil
	case created.Conversation != nil && created.Conversation.ID != 0:
		return created.Conversation.ID, nil
	}
	return 0, fmt.Errorf("%w: response carried no id", ErrConversationCreate)
}
