package services

import (
	"fmt"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
)

// Gateway sends WhatsApp messages through one provider-connected line
type Gateway interface {
	SendText(phone, message string) error
	SendMedia(phone, mediaURL, caption string) error
}

// InstanceStatus is the connection state reported by a gateway
type InstanceStatus struct {
	Connected bool           `json:"connected"`
	Phone     string         `json:"phone,omitempty"`
	QRCode    string         `json:"qr_code,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// InstanceController is implemented by gateways that expose a connection
// lifecycle (status polling, QR pairing, logout).
type InstanceController interface {
	Status() (*InstanceStatus, error)
	QRCode() (string, error)
	Disconnect() error
}

// GatewayFactory builds the gateway for a stored number
type GatewayFactory interface {
	ForNumber(number *models.WhatsAppNumber) (Gateway, error)
	ForCredentials(instanceID, token string) (Gateway, error)
}

// ControllerFactory returns the lifecycle controller of a stored number
type ControllerFactory interface {
	Controller(number *models.WhatsAppNumber) (InstanceController, error)
}

// ProviderGateways picks the provider client from the number's Provider field
type ProviderGateways struct {
	cfg    *config.Config
	twilio *TwilioService
}

// NewProviderGateways creates the factory. twilio may be nil when Twilio is
// not configured; numbers bound to it then fail with ErrMissingCredentials.
func NewProviderGateways(cfg *config.Config, twilio *TwilioService) *ProviderGateways {
	return &ProviderGateways{cfg: cfg, twilio: twilio}
}

func (p *ProviderGateways) ForNumber(number *models.WhatsAppNumber) (Gateway, error) {
	switch number.Provider {
	case models.ProviderTwilio:
		if p.twilio == nil {
			return nil, fmt.Errorf("%w: twilio is not configured", ErrMissingCredentials)
		}
		return p.twilio, nil
	case models.ProviderMeta:
		return NewMetaClient(p.cfg.Meta.APIBaseURL, number.InstanceID, number.Token, p.cfg.DefaultCountryCode)
	default:
		return p.ForCredentials(number.InstanceID, number.Token)
	}
}

// ForCredentials builds a Z-API client for an instance id and token
func (p *ProviderGateways) ForCredentials(instanceID, token string) (Gateway, error) {
	return NewZAPIClient(p.cfg.ZAPI, instanceID, token, p.cfg.DefaultCountryCode)
}

// Controller returns the lifecycle controller for a number, if its provider has one
func (p *ProviderGateways) Controller(number *models.WhatsAppNumber) (InstanceController, error) {
	gateway, err := p.ForNumber(number)
	if err != nil {
		return nil, err
	}
	controller, ok := gateway.(InstanceController)
	if !ok {
		return nil, fmt.Errorf("provider %s has no instance lifecycle", number.Provider)
	}
	return controller, nil
}
