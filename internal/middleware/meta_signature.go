package middleware

import (
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// ValidateMetaSignature checks X-Hub-Signature-256 against the app secret.
// Requests without the header pass, matching Meta's unsigned test deliveries.
func ValidateMetaSignature(appSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		signature := c.Get("X-Hub-Signature-256")
		if signature == "" {
			return c.Next()
		}
		if !services.ValidMetaSignature(appSecret, c.Body(), signature) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Assinatura inválida",
			})
		}
		return c.Next()
	}
}
