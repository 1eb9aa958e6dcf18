package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// MetaClient sends messages through the WhatsApp Cloud API
type MetaClient struct {
	messagesURL        string
	token              string
	defaultCountryCode string
}

// NewMetaClient builds a Cloud API client for one phone number id
func NewMetaClient(apiBaseURL, phoneNumberID, token, defaultCountryCode string) (*MetaClient, error) {
	if phoneNumberID == "" || token == "" {
		return nil, fmt.Errorf("%w: meta phone number id and access token are required", ErrMissingCredentials)
	}
	return &MetaClient{
		messagesURL:        fmt.Sprintf("%s/%s/messages", strings.TrimRight(apiBaseURL, "/"), phoneNumberID),
		token:              token,
		defaultCountryCode: defaultCountryCode,
	}, nil
}

func (m *MetaClient) post(payload map[string]any) error {
	resp, err := apiCall{
		method:  fiber.MethodPost,
		url:     m.messagesURL,
		headers: map[string]string{"Authorization": "Bearer " + m.token},
		payload: payload,
	}.do()
	if err != nil {
		return fmt.Errorf("meta send: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("meta send returned %d: %s", resp.status, apiErrorMessage(resp.body))
	}
	return nil
}

func (m *MetaClient) SendText(phone, message string) error {
	return m.post(map[string]any{
		"messaging_product": "whatsapp",
		"to":                utils.FormatForGateway(phone, m.defaultCountryCode),
		"type":              "text",
		"text":              map[string]string{"body": message},
	})
}

func (m *MetaClient) SendMedia(phone, mediaURL, caption string) error {
	kind := attachmentFileType(mediaURL)
	if kind == "file" {
		kind = "document"
	}
	media := map[string]string{"link": mediaURL}
	if caption != "" && kind != "audio" {
		media["caption"] = caption
	}
	return m.post(map[string]any{
		"messaging_product": "whatsapp",
		"to":                utils.FormatForGateway(phone, m.defaultCountryCode),
		"type":              kind,
		kind:                media,
	})
}

// VerifyMetaChallenge answers the webhook subscription handshake. It returns
// the challenge and true only for mode "subscribe" with the expected token.
func VerifyMetaChallenge(mode, token, challenge, verifyToken string) (string, bool) {
	if mode != "subscribe" || verifyToken == "" || token != verifyToken {
		return "", false
	}
	return challenge, true
}

// ValidMetaSignature checks an X-Hub-Signature-256 header ("sha256=<hex>")
// against the raw request body. An empty secret disables the check.
func ValidMetaSignature(secret string, body []byte, header string) bool {
	if secret == "" {
		return true
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
