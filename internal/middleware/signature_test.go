package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusOK)
}

func TestValidateMetaSignature(t *testing.T) {
	app := fiber.New()
	app.Post("/webhook/meta", ValidateMetaSignature("app-secret"), okHandler)

	body := `{"object":"whatsapp_business_account"}`
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write([]byte(body))
	valid := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	for _, tc := range []struct {
		name      string
		signature string
		want      int
	}{
		{"valid", valid, fiber.StatusOK},
		{"unsigned", "", fiber.StatusOK},
		{"tampered", "sha256=" + strings.Repeat("0", 64), fiber.StatusForbidden},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/meta", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tc.signature != "" {
				req.Header.Set("X-Hub-Signature-256", tc.signature)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func twilioSignature(token, fullURL string, form url.Values) string {
	payload := fullURL
	for _, key := range []string{"Body", "From"} {
		payload += key + form.Get(key)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateTwilioSignature(t *testing.T) {
	const base = "https://relay.example.com"
	app := fiber.New()
	app.Post("/webhook/twilio", ValidateTwilioSignature("auth-token", base), okHandler)

	form := url.Values{"Body": {"oi"}, "From": {"whatsapp:+5511999999999"}}

	send := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if signature != "" {
			req.Header.Set("X-Twilio-Signature", signature)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, send(twilioSignature("auth-token", base+"/webhook/twilio", form)))
	assert.Equal(t, fiber.StatusUnauthorized, send(twilioSignature("wrong", base+"/webhook/twilio", form)))
	assert.Equal(t, fiber.StatusUnauthorized, send(""))
}
