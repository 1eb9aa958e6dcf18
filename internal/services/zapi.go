package services

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// ZAPIClient talks to one Z-API instance
type ZAPIClient struct {
	baseURL            string
	instanceID         string
	clientToken        string
	defaultCountryCode string
	settleDelay        time.Duration
}

// NewZAPIClient builds a client for an instance. Instance id and token are
// required; the client token header is optional.
func NewZAPIClient(cfg config.ZAPIConfig, instanceID, token, defaultCountryCode string) (*ZAPIClient, error) {
	if instanceID == "" || token == "" {
		return nil, fmt.Errorf("%w: z-api instance id and token are required", ErrMissingCredentials)
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.z-api.io"
	}
	return &ZAPIClient{
		baseURL:            fmt.Sprintf("%s/instances/%s/token/%s", strings.TrimRight(base, "/"), instanceID, token),
		instanceID:         instanceID,
		clientToken:        cfg.ClientToken,
		defaultCountryCode: defaultCountryCode,
		settleDelay:        time.Second,
	}, nil
}

func (z *ZAPIClient) call(method, path string, payload any) (apiResponse, error) {
	resp, err := apiCall{
		method:  method,
		url:     z.baseURL + path,
		headers: map[string]string{"Client-Token": z.clientToken},
		payload: payload,
	}.do()
	if err != nil {
		return resp, fmt.Errorf("z-api %s %s: %w", method, path, err)
	}
	return resp, nil
}

func (z *ZAPIClient) post(path string, payload any) error {
	resp, err := z.call(fiber.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return fmt.Errorf("z-api %s returned %d: %s", path, resp.status, apiErrorMessage(resp.body))
	}
	return nil
}

// SendText sends a text message
func (z *ZAPIClient) SendText(phone, message string) error {
	to := utils.FormatForGateway(phone, z.defaultCountryCode)
	if err := z.post("/send-text", map[string]string{"phone": to, "message": message}); err != nil {
		log.Printf("❌ Z-API send-text to %s failed: %v", to, err)
		return err
	}
	log.Printf("✅ Z-API message sent to %s", to)
	return nil
}

// SendMedia sends an image, or a file for anything else
func (z *ZAPIClient) SendMedia(phone, mediaURL, caption string) error {
	to := utils.FormatForGateway(phone, z.defaultCountryCode)
	if attachmentFileType(mediaURL) == "image" {
		return z.post("/send-image", map[string]string{"phone": to, "image": mediaURL, "caption": caption})
	}
	return z.post("/send-file", map[string]string{"phone": to, "file": mediaURL, "caption": caption})
}

// Status reads the instance connection state
func (z *ZAPIClient) Status() (*InstanceStatus, error) {
	resp, err := z.call(fiber.MethodGet, "/status", nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, fmt.Errorf("z-api status returned %d: %s", resp.status, apiErrorMessage(resp.body))
	}
	var raw map[string]any
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		return nil, fmt.Errorf("decode z-api status: %w", err)
	}
	return parseInstanceStatus(raw), nil
}

func parseInstanceStatus(raw map[string]any) *InstanceStatus {
	status := &InstanceStatus{Raw: raw}
	if connected, ok := raw["connected"].(bool); ok && connected {
		status.Connected = true
	}
	for _, key := range []string{"status", "connectionState"} {
		if s, ok := raw[key].(string); ok && (s == "connected" || s == "open") {
			status.Connected = true
		}
	}
	if phone, ok := raw["phone"].(string); ok {
		status.Phone = phone
	}
	status.QRCode = firstString(raw, "qrCode", "qr", "qrcode", "base64", "qrcode_base64")
	if status.QRCode == "" {
		if data, ok := raw["data"].(map[string]any); ok {
			status.QRCode = firstString(data, "qrCode", "qr")
		}
	}
	return status
}

// Disconnect logs the instance out, trying the endpoint names Z-API has used
func (z *ZAPIClient) Disconnect() error {
	for _, path := range []string{"/disconnect", "/logout", "/stop"} {
		resp, err := z.call(fiber.MethodPost, path, map[string]any{})
		if err != nil {
			return err
		}
		if resp.status == fiber.StatusNotFound {
			continue
		}
		if !resp.ok() {
			return fmt.Errorf("z-api %s returned %d: %s", path, resp.status, apiErrorMessage(resp.body))
		}
		return nil
	}
	return fmt.Errorf("z-api: no disconnect endpoint found")
}

// QRCode returns a pairing QR. A connected instance is disconnected first so
// a fresh code can be issued.
func (z *ZAPIClient) QRCode() (string, error) {
	status, err := z.Status()
	if err != nil {
		log.Printf("⚠️  Z-API status before QR failed: %v", err)
	} else {
		if status.QRCode != "" {
			return status.QRCode, nil
		}
		if status.Connected {
			if err := z.Disconnect(); err != nil {
				log.Printf("⚠️  Z-API disconnect before QR failed: %v", err)
			}
			time.Sleep(z.settleDelay)
		}
	}

	var lastErr error
	for _, path := range []string{"/qr-code/image", "/qr-code"} {
		resp, err := z.call(fiber.MethodGet, path, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if !resp.ok() {
			lastErr = fmt.Errorf("z-api %s returned %d: %s", path, resp.status, apiErrorMessage(resp.body))
			continue
		}
		if code := extractQRValue(resp.body); code != "" {
			return code, nil
		}
		lastErr = fmt.Errorf("z-api %s: response carries no QR code", path)
	}
	return "", fmt.Errorf("z-api instance %s: %w", z.instanceID, lastErr)
}

func extractQRValue(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		if msg := firstString(obj, "error"); msg != "" {
			return ""
		}
		return firstString(obj, "base64", "qrCode", "qr", "qrcode", "data", "value", "qrcode_base64")
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(body))
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
