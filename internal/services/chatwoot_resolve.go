package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// maxMediaBytes caps inline attachment downloads
const maxMediaBytes = 16 << 20

// FindOrCreateContact returns the id of the contact owning phone, creating
// it (identifier = E.164 phone) when no search representation matches.
func (c *ChatwootClient) FindOrCreateContact(phone, name string) (int, error) {
	formatted := utils.FormatToE164(phone, c.defaultCountryCode)
	searches := []string{formatted, phone, utils.Digits(phone)}

	for _, query := range searches {
		if query == "" {
			continue
		}
		contacts, err := c.SearchContacts(query)
		if err != nil {
			log.Printf("⚠️  Contact search for %s failed: %v", query, err)
			continue
		}
		queryDigits := utils.Digits(query)
		for _, contact := range contacts {
			stored := contact.PhoneNumber
			if stored == "" {
				stored = contact.Identifier
			}
			if stored == "" {
				continue
			}
			if stored == query || stored == formatted || utils.Digits(stored) == queryDigits {
				return contact.ID, nil
			}
		}
	}

	if name == "" {
		name = formatted
	}
	log.Printf("📝 Creating Chatwoot contact for %s", formatted)
	contact, err := c.CreateContact(name, formatted)
	if err != nil {
		return 0, fmt.Errorf("create contact %s: %w", formatted, err)
	}
	return contact.ID, nil
}

// findConversationByPhone scans an inbox for a conversation whose contact
// phone matches phone in any representation.
func (c *ChatwootClient) findConversationByPhone(phone string, inboxID int) (int, bool, error) {
	conversations, err := c.ListConversations(inboxID, "")
	if err != nil {
		return 0, false, err
	}
	for _, conv := range conversations {
		if utils.SamePhone(conv.ContactPhone(), phone, c.defaultCountryCode) {
			return conv.ID, true, nil
		}
	}
	return 0, false, nil
}

// ensureContactInbox returns the source id linking contact and inbox,
// creating the link when missing. Creation is retried without a source id.
func (c *ChatwootClient) ensureContactInbox(contactID, inboxID int) (string, error) {
	contact, err := c.GetContact(contactID)
	if err != nil {
		log.Printf("⚠️  Could not load contact %d: %v", contactID, err)
	} else {
		for _, ci := range contact.ContactInboxes {
			if ci.InboxRef() == inboxID && ci.SourceID != "" {
				return ci.SourceID, nil
			}
		}
	}

	ci, err := c.CreateContactInbox(contactID, inboxID, fmt.Sprintf("contact:%d", contactID))
	if err != nil {
		log.Printf("⚠️  Contact inbox with explicit source id failed: %v", err)
		ci, err = c.CreateContactInbox(contactID, inboxID, "")
		if err != nil {
			return "", fmt.Errorf("create contact inbox: %w", err)
		}
	}
	if ci.SourceID == "" {
		return fmt.Sprintf("contact_inbox:%d", ci.ID), nil
	}
	return ci.SourceID, nil
}

// FindOrCreateConversation resolves the conversation for phone in inboxID.
// It returns ErrConversationCreate when Chatwoot refuses a bare
// conversation; callers then fall back to CreateMessageViaContactInbox.
func (c *ChatwootClient) FindOrCreateConversation(phone string, inboxID int, contactName string) (int, error) {
	id, found, err := c.findConversationByPhone(phone, inboxID)
	if err != nil && !errors.Is(err, ErrChatwootUnavailable) {
		return 0, err
	}
	if found {
		return id, nil
	}

	contactID, err := c.FindOrCreateContact(phone, contactName)
	if err != nil {
		return 0, err
	}

	sourceID, err := c.ensureContactInbox(contactID, inboxID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConversationCreate, err)
	}

	conversationID, err := c.CreateConversation(sourceID, inboxID, contactID)
	if err != nil {
		log.Printf("⚠️  Bare conversation create refused for %s: %v", phone, err)
		return 0, fmt.Errorf("%w: %v", ErrConversationCreate, err)
	}
	return conversationID, nil
}

// CreateMessageViaContactInbox is the fallback when a conversation could not be
// created directly: it links contact and inbox, creates (or finds) the
// conversation for that link and posts the incoming message into it.
func (c *ChatwootClient) CreateMessageViaContactInbox(phone string, inboxID int, content, contactName, mediaURL string) (int, *Message, error) {
	contactID, err := c.FindOrCreateContact(phone, contactName)
	if err != nil {
		return 0, nil, err
	}
	sourceID, err := c.ensureContactInbox(contactID, inboxID)
	if err != nil {
		return 0, nil, err
	}

	conversationID, createErr := c.CreateConversation(sourceID, inboxID, contactID)
	if createErr != nil {
		log.Printf("⚠️  Conversation create via source id failed, searching contact conversations: %v", createErr)
		conversations, err := c.ListContactConversations(contactID)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrConversationCreate, createErr)
		}
		for _, conv := range conversations {
			if conv.InboxID == inboxID {
				conversationID = conv.ID
				break
			}
		}
		if conversationID == 0 {
			return 0, nil, fmt.Errorf("%w: %v", ErrConversationCreate, createErr)
		}
	}

	message, err := c.CreateInboundMessage(conversationID, content, mediaURL)
	if err != nil {
		return conversationID, nil, err
	}
	return conversationID, message, nil
}

// CreateInboundMessage posts a contact-side message, with the media as an
// attachment when mediaURL is set.
func (c *ChatwootClient) CreateInboundMessage(conversationID int, content, mediaURL string) (*Message, error) {
	if mediaURL == "" {
		return c.CreateIncomingMessage(conversationID, content)
	}
	return c.SendWithAttachment(conversationID, content, mediaURL)
}

// SendWithAttachment tries a remote-URL attachment, then an inline base64
// data payload, then plain text carrying the link.
func (c *ChatwootClient) SendWithAttachment(conversationID int, content, mediaURL string) (*Message, error) {
	fileType := attachmentFileType(mediaURL)

	message, err := c.createMessage(conversationID, createMessageRequest{
		Content:     content,
		MessageType: "incoming",
		Attachments: []OutgoingAttachment{{FileType: fileType, RemoteFileURL: mediaURL}},
	})
	if err == nil {
		return message, nil
	}
	log.Printf("⚠️  remote_file_url attachment rejected, downloading media: %v", err)

	dataURL, err := downloadDataURL(mediaURL)
	if err == nil {
		message, err = c.createMessage(conversationID, createMessageRequest{
			Content:     content,
			MessageType: "incoming",
			Attachments: []OutgoingAttachment{{
				FileType: fileType,
				Data:     dataURL,
				FileName: "attachment." + fileExtension(mediaURL),
			}},
		})
		if err == nil {
			return message, nil
		}
	}
	log.Printf("⚠️  Inline attachment failed, sending link instead: %v", err)

	text := "📎 " + mediaURL
	if content != "" {
		text = content + "\n\n" + text
	}
	return c.CreateIncomingMessage(conversationID, text)
}

func downloadDataURL(mediaURL string) (string, error) {
	resp, err := apiCall{method: fiber.MethodGet, url: mediaURL}.do()
	if err != nil {
		return "", fmt.Errorf("download %s: %w", mediaURL, err)
	}
	if !resp.ok() {
		return "", fmt.Errorf("download %s returned %d", mediaURL, resp.status)
	}
	if len(resp.body) == 0 || len(resp.body) > maxMediaBytes {
		return "", fmt.Errorf("download %s: unusable size %d", mediaURL, len(resp.body))
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaContentType(mediaURL), base64.StdEncoding.EncodeToString(resp.body)), nil
}

func attachmentFileType(mediaURL string) string {
	lower := strings.ToLower(mediaURL)
	switch {
	case strings.Contains(lower, ".webp") || strings.Contains(lower, "sticker"):
		return "image"
	case strings.Contains(lower, ".mp4") || strings.Contains(lower, "video"):
		return "video"
	case strings.Contains(lower, ".mp3") || strings.Contains(lower, ".ogg") || strings.Contains(lower, "audio"):
		return "audio"
	case strings.Contains(lower, ".pdf") || strings.Contains(lower, "document"):
		return "file"
	}
	return "image"
}

func mediaContentType(mediaURL string) string {
	switch fileExtension(mediaURL) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "mp4":
		return "video/mp4"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "pdf":
		return "application/pdf"
	}
	return "image/webp"
}

func fileExtension(mediaURL string) string {
	clean := mediaURL
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(clean)), ".")
	if ext == "" || len(ext) > 5 {
		return "webp"
	}
	return ext
}
