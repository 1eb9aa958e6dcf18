package services

import (
	"testing"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseZAPIEventTextMessage(t *testing.T) {
	event := ParseZAPIEvent([]byte(`{
		"type": "ReceivedCallback",
		"instanceId": "inst-body",
		"phone": "5511999999999",
		"fromMe": false,
		"senderName": "Ana",
		"text": {"message": "Olá"}
	}`), "")

	require.Equal(t, EventMessage, event.Kind)
	assert.Equal(t, "inst-body", event.InstanceID)
	assert.Equal(t, models.InboundMessage{
		Phone:      "5511999999999",
		Text:       "Olá",
		Kind:       models.KindText,
		InstanceID: "inst-body",
		SenderName: "Ana",
		Provider:   models.ProviderZAPI,
	}, event.Message)
}

func TestParseZAPIEventHeaderInstanceWins(t *testing.T) {
	event := ParseZAPIEvent([]byte(`{"instanceId":"inst-body","phone":"5511","fromMe":false,"text":"oi"}`), "inst-header")

	assert.Equal(t, EventMessage, event.Kind)
	assert.Equal(t, "inst-header", event.Message.InstanceID)
	assert.Equal(t, "oi", event.Message.Text)
}

func TestParseZAPIEventNestedMessage(t *testing.T) {
	event := ParseZAPIEvent([]byte(`{"message":{"from":"5511988887777","body":"preciso de ajuda","fromMe":true}}`), "inst")

	require.Equal(t, EventMessage, event.Kind)
	assert.Equal(t, "5511988887777", event.Message.Phone)
	assert.Equal(t, "preciso de ajuda", event.Message.Text)
	assert.True(t, event.Message.FromMe)
}

func TestParseZAPIEventMedia(t *testing.T) {
	cases := []struct {
		body     string
		kind     string
		text     string
		mediaURL string
	}{
		{`{"type":"ReceivedCallback","phone":"55","image":{"imageUrl":"https://cdn/i.jpg","caption":"olha"}}`, models.KindImage, "olha", "https://cdn/i.jpg"},
		{`{"type":"ReceivedCallback","phone":"55","image":{"imageUrl":"https://cdn/i.jpg"}}`, models.KindImage, "[Imagem]", "https://cdn/i.jpg"},
		{`{"type":"ReceivedCallback","phone":"55","audio":{"audioUrl":"https://cdn/a.ogg"}}`, models.KindAudio, "[Áudio]", "https://cdn/a.ogg"},
		{`{"type":"ReceivedCallback","phone":"55","text":{"message":"x"},"sticker":{"stickerUrl":"https://cdn/s.webp"}}`, models.KindSticker, "[Sticker]", "https://cdn/s.webp"},
		{`{"type":"ReceivedCallback","phone":"55","document":{"documentUrl":"https://cdn/d.pdf"}}`, models.KindDocument, "[Documento]", "https://cdn/d.pdf"},
	}
	for _, tc := range cases {
		event := ParseZAPIEvent([]byte(tc.body), "inst")
		require.Equal(t, EventMessage, event.Kind, tc.body)
		assert.Equal(t, tc.kind, event.Message.Kind, tc.body)
		assert.Equal(t, tc.text, event.Message.Text, tc.body)
		assert.Equal(t, tc.mediaURL, event.Message.MediaURL, tc.body)
	}
}

func TestParseZAPIEventStatusAndQRCode(t *testing.T) {
	status := ParseZAPIEvent([]byte(`{"type":"DisconnectedCallback"}`), "inst")
	assert.Equal(t, EventStatus, status.Kind)
	assert.Equal(t, "disconnected", status.Status)

	receipt := ParseZAPIEvent([]byte(`{"type":"MessageStatusCallback","status":"READ"}`), "inst")
	assert.Equal(t, EventUnknown, receipt.Kind)

	qr := ParseZAPIEvent([]byte(`{"qrCode":"2@abc"}`), "inst")
	assert.Equal(t, EventQRCode, qr.Kind)
	assert.Equal(t, "2@abc", qr.QRCode)
}

func TestParseZAPIEventUnreadable(t *testing.T) {
	for _, body := range []string{``, `{`, `[1,2]`, `"text"`, `{"foo":1}`} {
		event := ParseZAPIEvent([]byte(body), "inst")
		assert.Equal(t, EventUnknown, event.Kind, body)
		assert.Equal(t, "inst", event.InstanceID, body)
	}
}

func TestTwilioInboundNormalize(t *testing.T) {
	msg := TwilioInbound{
		From:              "whatsapp:+5511999999999",
		To:                "whatsapp:+14155238886",
		Body:              "",
		ProfileName:       "Ana",
		NumMedia:          "1",
		MediaUrl0:         "https://api.twilio.com/media/1",
		MediaContentType0: "image/jpeg",
	}.Normalize()

	assert.Equal(t, "+5511999999999", msg.Phone)
	assert.Equal(t, "+14155238886", msg.InstanceID)
	assert.Equal(t, models.KindImage, msg.Kind)
	assert.Equal(t, models.ProviderTwilio, msg.Provider)
	assert.Equal(t, "Ana", msg.SenderName)
}

func TestParseMetaMessages(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{
		"metadata":{"phone_number_id":"1098"},
		"contacts":[{"profile":{"name":"Ana"},"wa_id":"5511999999999"}],
		"messages":[
			{"from":"5511999999999","type":"text","text":{"body":"oi"}},
			{"from":"5511999999999","type":"image","image":{"id":"m1","caption":"foto"}}
		]}}]}]}`)

	messages, err := ParseMetaMessages(body)

	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.InboundMessage{
		Phone:      "5511999999999",
		Text:       "oi",
		Kind:       models.KindText,
		InstanceID: "1098",
		SenderName: "Ana",
		Provider:   models.ProviderMeta,
	}, messages[0])
	assert.Equal(t, models.KindImage, messages[1].Kind)
	assert.Equal(t, "foto", messages[1].Text)

	_, err = ParseMetaMessages([]byte(`not json`))
	assert.Error(t, err)
}
