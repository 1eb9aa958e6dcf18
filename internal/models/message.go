package models

// Message kinds carried by an inbound WhatsApp event
const (
	KindText     = "text"
	KindImage    = "image"
	KindVideo    = "video"
	KindAudio    = "audio"
	KindDocument = "document"
	KindSticker  = "sticker"
)

// InboundMessage is the provider-independent shape of one received message
type InboundMessage struct {
	Phone      string `json:"phone"`
	Text       string `json:"text"`
	Kind       string `json:"kind"`
	MediaURL   string `json:"media_url,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	FromMe     bool   `json:"from_me"`
	Provider   string `json:"provider"`
}

// HasMedia reports whether the message carries an attachment URL
func (m *InboundMessage) HasMedia() bool {
	return m.MediaURL != ""
}
