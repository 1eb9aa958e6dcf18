package services

import (
	"fmt"
	"log"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/utils"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioService sends WhatsApp messages through Twilio's messaging API
type TwilioService struct {
	client             *twilio.RestClient
	from               string // "whatsapp:+14155238886"
	defaultCountryCode string
}

// NewTwilioService creates a new Twilio service instance
func NewTwilioService(cfg config.TwilioConfig, defaultCountryCode string) (*TwilioService, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.WhatsAppFrom == "" {
		return nil, fmt.Errorf("%w: TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_WHATSAPP_FROM are required", ErrMissingCredentials)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	from := cfg.WhatsAppFrom
	if utils.StripWhatsAppPrefix(from) == from {
		from = "whatsapp:" + from
	}

	return &TwilioService{
		client:             client,
		from:               from,
		defaultCountryCode: defaultCountryCode,
	}, nil
}

func (t *TwilioService) recipient(phone string) string {
	return "whatsapp:" + utils.FormatToE164(utils.StripWhatsAppPrefix(phone), t.defaultCountryCode)
}

// SendText sends a WhatsApp message via Twilio
func (t *TwilioService) SendText(phone, message string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(t.recipient(phone))
	params.SetBody(message)

	return t.create(params)
}

// SendMedia sends a media message with an optional caption
func (t *TwilioService) SendMedia(phone, mediaURL, caption string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(t.recipient(phone))
	params.SetMediaUrl([]string{mediaURL})
	if caption != "" {
		params.SetBody(caption)
	}

	return t.create(params)
}

func (t *TwilioService) create(params *twilioApi.CreateMessageParams) error {
	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("❌ Failed to send WhatsApp message: %v", err)
		return err
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, msg)
	}

	if resp.Sid != nil {
		log.Printf("✅ WhatsApp message sent! SID: %s", *resp.Sid)
	}
	return nil
}
