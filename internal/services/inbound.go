package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/utils"
)

// EventKind classifies a gateway webhook delivery
type EventKind int

const (
	EventUnknown EventKind = iota
	EventMessage
	EventStatus
	EventQRCode
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventStatus:
		return "status"
	case EventQRCode:
		return "qr-code"
	}
	return "unknown"
}

// GatewayEvent is one parsed webhook delivery
type GatewayEvent struct {
	Kind       EventKind
	InstanceID string
	Message    models.InboundMessage
	Status     string
	QRCode     string
}

// payload is a decoded JSON object with tolerant accessors
type payload map[string]any

// rule extracts one candidate value; rules are tried in order and the first
// non-empty result wins.
type rule func(payload) string

func firstOf(p payload, rules ...rule) string {
	for _, r := range rules {
		if v := r(p); v != "" {
			return v
		}
	}
	return ""
}

// at returns a rule reading the value at a dotted path, coerced to string
func at(path string) rule {
	return func(p payload) string {
		return asString(p.lookup(path))
	}
}

func (p payload) lookup(path string) any {
	var current any = map[string]any(p)
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

func (p payload) has(path string) bool {
	v := p.lookup(path)
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	return true
}

func (p payload) object(path string) payload {
	if m, ok := p.lookup(path).(map[string]any); ok {
		return payload(m)
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case map[string]any, []any:
		return ""
	}
	return fmt.Sprint(v)
}

func decodePayload(body []byte) (payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("payload is not an object")
	}
	return payload(m), nil
}

var messageEventTypes = map[string]bool{
	"message":          true,
	"messages":         true,
	"received":         true,
	"ReceivedCallback": true,
}

// ParseZAPIEvent classifies and normalizes a Z-API webhook body. It never
// fails: unreadable bodies come back as EventUnknown.
func ParseZAPIEvent(body []byte, headerInstanceID string) GatewayEvent {
	p, err := decodePayload(body)
	if err != nil {
		return GatewayEvent{Kind: EventUnknown, InstanceID: headerInstanceID}
	}

	event := GatewayEvent{
		InstanceID: firstOf(p,
			func(payload) string { return headerInstanceID },
			at("instanceId"),
			at("instance.id"),
		),
	}
	eventType := firstOf(p, at("event"), at("type"), at("action"))

	switch {
	case isZAPIMessage(p, eventType):
		event.Kind = EventMessage
		event.Message = extractZAPIMessage(p)
		event.Message.InstanceID = event.InstanceID
	case eventType == "MessageStatusCallback" || eventType == "DeliveryCallback":
		// delivery receipts carry a "status" too but say nothing about the connection
		event.Kind = EventUnknown
	case eventType == "status" || p.has("status") || eventType == "ConnectedCallback" || eventType == "DisconnectedCallback":
		event.Kind = EventStatus
		event.Status = firstOf(p, at("status"), at("connectionStatus"))
		switch eventType {
		case "ConnectedCallback":
			event.Status = "connected"
		case "DisconnectedCallback":
			event.Status = "disconnected"
		}
	case eventType == "qr-code" || p.has("qrCode"):
		event.Kind = EventQRCode
		event.QRCode = firstOf(p, at("qrCode"), at("qr"))
	default:
		event.Kind = EventUnknown
	}
	return event
}

func isZAPIMessage(p payload, eventType string) bool {
	if messageEventTypes[eventType] {
		return true
	}
	if msg := p.object("message"); msg != nil && (msg.has("from") || msg.has("phone")) {
		return true
	}
	fromMe, isBool := p.lookup("fromMe").(bool)
	return p.has("phone") && isBool && !fromMe
}

type mediaRule struct {
	field       string
	kind        string
	placeholder string
	urls        []rule
	override    bool // replaces any text instead of filling an empty one
}

// mediaRules are checked in priority order; stickers win over everything
var mediaRules = []mediaRule{
	{field: "sticker", kind: models.KindSticker, placeholder: "[Sticker]", override: true,
		urls: []rule{at("sticker.stickerUrl"), at("stickerUrl")}},
	{field: "image", kind: models.KindImage, placeholder: "[Imagem]",
		urls: []rule{at("image.imageUrl"), at("image")}},
	{field: "photo", kind: models.KindImage, placeholder: "[Imagem]",
		urls: []rule{at("photo")}},
	{field: "video", kind: models.KindVideo, placeholder: "[Vídeo]",
		urls: []rule{at("video.videoUrl"), at("videoUrl")}},
	{field: "audio", kind: models.KindAudio, placeholder: "[Áudio]",
		urls: []rule{at("audio.audioUrl"), at("audioUrl")}},
	{field: "document", kind: models.KindDocument, placeholder: "[Documento]",
		urls: []rule{at("document.documentUrl"), at("documentUrl")}},
}

func extractZAPIMessage(p payload) models.InboundMessage {
	msg := models.InboundMessage{
		Provider:   models.ProviderZAPI,
		SenderName: firstOf(p, at("senderName"), at("chatName")),
	}
	if fromMe, ok := p.lookup("fromMe").(bool); ok {
		msg.FromMe = fromMe
	}

	if nested := p.object("message"); nested != nil {
		msg.Phone = firstOf(nested, at("from"), at("phone"), at("phoneNumber"), at("contact.phone"))
		msg.Text = firstOf(nested, at("text"), at("body"), at("content"))
		msg.Kind = firstOf(nested, at("type"))
		msg.MediaURL = firstOf(nested, at("mediaUrl"), at("fileUrl"), at("imageUrl"), at("videoUrl"), at("stickerUrl"))
		if nested.has("fromMe") {
			fromMe, _ := nested.lookup("fromMe").(bool)
			msg.FromMe = msg.FromMe || fromMe
		}
	} else {
		msg.Phone = firstOf(p, at("phone"), at("from"), at("phoneNumber"))
		msg.Text = firstOf(p, at("text"), at("text.message"), at("text.text"), at("text.body"), at("text.content"),
			at("body"), at("content"))
		msg.Kind = firstOf(p, at("messageType"))
		msg.MediaURL = firstOf(p, at("mediaUrl"), at("fileUrl"), at("imageUrl"), at("videoUrl"))

		for _, mr := range mediaRules {
			if !p.has(mr.field) {
				continue
			}
			msg.Kind = mr.kind
			if url := firstOf(p, mr.urls...); url != "" {
				msg.MediaURL = url
			}
			if caption := firstOf(p, at(mr.field+".caption")); caption != "" && msg.Text == "" {
				msg.Text = caption
			}
			if mr.override || msg.Text == "" {
				msg.Text = mr.placeholder
			}
			break
		}
	}

	msg.Phone = strings.TrimSpace(msg.Phone)
	if msg.Kind == "" || messageEventTypes[msg.Kind] {
		msg.Kind = models.KindText
	}
	return msg
}

// TwilioInbound is the form payload Twilio posts for an incoming WhatsApp message
type TwilioInbound struct {
	MessageSid        string `form:"MessageSid"`
	AccountSid        string `form:"AccountSid"`
	From              string `form:"From"` // whatsapp:+5511999999999
	To                string `form:"To"`
	Body              string `form:"Body"`
	ProfileName       string `form:"ProfileName"`
	NumMedia          string `form:"NumMedia"`
	MediaUrl0         string `form:"MediaUrl0"`
	MediaContentType0 string `form:"MediaContentType0"`
}

// Normalize converts the Twilio form into an InboundMessage. The receiving
// Twilio address is used as instance id.
func (t TwilioInbound) Normalize() models.InboundMessage {
	msg := models.InboundMessage{
		Phone:      utils.StripWhatsAppPrefix(t.From),
		Text:       t.Body,
		Kind:       models.KindText,
		MediaURL:   t.MediaUrl0,
		InstanceID: utils.StripWhatsAppPrefix(t.To),
		SenderName: t.ProfileName,
		Provider:   models.ProviderTwilio,
	}
	if t.MediaUrl0 != "" {
		msg.Kind = kindFromContentType(t.MediaContentType0)
	}
	return msg
}

func kindFromContentType(ct string) string {
	switch {
	case ct == "image/webp":
		return models.KindSticker
	case strings.HasPrefix(ct, "image/"):
		return models.KindImage
	case strings.HasPrefix(ct, "video/"):
		return models.KindVideo
	case strings.HasPrefix(ct, "audio/"):
		return models.KindAudio
	}
	return models.KindDocument
}

// metaWebhook mirrors the parts of a Cloud API notification we read
type metaWebhook struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
					Image    *metaMedia `json:"image"`
					Video    *metaMedia `json:"video"`
					Audio    *metaMedia `json:"audio"`
					Document *metaMedia `json:"document"`
					Sticker  *metaMedia `json:"sticker"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type metaMedia struct {
	ID      string `json:"id"`
	Caption string `json:"caption"`
	Link    string `json:"link"`
}

// ParseMetaMessages extracts every message of a Cloud API notification. The
// phone number id becomes the instance id.
func ParseMetaMessages(body []byte) ([]models.InboundMessage, error) {
	var hook metaWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("decode meta webhook: %w", err)
	}

	var messages []models.InboundMessage
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			names := make(map[string]string, len(value.Contacts))
			for _, c := range value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range value.Messages {
				msg := models.InboundMessage{
					Phone:      m.From,
					Kind:       models.KindText,
					InstanceID: value.Metadata.PhoneNumberID,
					SenderName: names[m.From],
					Provider:   models.ProviderMeta,
				}
				if m.Text != nil {
					msg.Text = m.Text.Body
				}
				media := map[string]*metaMedia{
					models.KindImage:    m.Image,
					models.KindVideo:    m.Video,
					models.KindAudio:    m.Audio,
					models.KindDocument: m.Document,
					models.KindSticker:  m.Sticker,
				}
				if item, ok := media[m.Type]; ok && item != nil {
					msg.Kind = m.Type
					msg.MediaURL = item.Link
					if msg.Text == "" {
						msg.Text = item.Caption
					}
				}
				messages = append(messages, msg)
			}
		}
	}
	return messages, nil
}
