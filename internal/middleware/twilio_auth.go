package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	twilioClient "github.com/twilio/twilio-go/client"
)

// ValidateTwilioSignature validates that the webhook request is from Twilio.
// publicBaseURL overrides the scheme and host Twilio signed, which differ from
// the request's when the service sits behind a proxy.
func ValidateTwilioSignature(authToken, publicBaseURL string) fiber.Handler {
	validator := twilioClient.NewRequestValidator(authToken)

	return func(c *fiber.Ctx) error {
		signature := c.Get("X-Twilio-Signature")
		if signature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Twilio signature",
			})
		}
		if authToken == "" {
			log.Printf("❌ TWILIO_AUTH_TOKEN not set, rejecting Twilio webhook")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		formParams := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			formParams[string(key)] = string(value)
		})

		if !validator.Validate(requestURL(c, publicBaseURL), formParams, signature) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}
		return c.Next()
	}
}

// requestURL rebuilds the URL the provider called
func requestURL(c *fiber.Ctx, publicBaseURL string) string {
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/") + string(c.Request().RequestURI())
	}
	return c.Protocol() + "://" + c.Hostname() + string(c.Request().RequestURI())
}
