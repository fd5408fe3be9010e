package line

import (
	"encoding/json"
	"fmt"
)

// Webhook event and message types handled by the relay.
const (
	EventMessage = "message"
	MessageText  = "text"
	SourceUser   = "user"
	SourceGroup  = "group"
	SourceRoom   = "room"
)

// WebhookEnvelope is the body LINE posts to the webhook.
type WebhookEnvelope struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is one webhook event.
type Event struct {
	Type            string           `json:"type"`
	Mode            string           `json:"mode,omitempty"`
	Timestamp       int64            `json:"timestamp"`
	WebhookEventID  string           `json:"webhookEventId,omitempty"`
	ReplyToken      string           `json:"replyToken,omitempty"`
	Source          Source           `json:"source"`
	Message         *Message         `json:"message,omitempty"`
	DeliveryContext *DeliveryContext `json:"deliveryContext,omitempty"`
}

// Source identifies who sent the event.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// ChatID returns the id to push replies to: the group, the room, or the user.
func (s Source) ChatID() string {
	switch {
	case s.GroupID != "":
		return s.GroupID
	case s.RoomID != "":
		return s.RoomID
	default:
		return s.UserID
	}
}

// PeerKind is "group" for group and room chats, "direct" otherwise.
func (s Source) PeerKind() string {
	if s.Type == SourceGroup || s.Type == SourceRoom {
		return "group"
	}
	return "direct"
}

// Message is the message payload of a message event.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// DeliveryContext marks redelivered events.
type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

// ParseWebhook decodes a verified webhook body.
func ParseWebhook(body []byte) (*WebhookEnvelope, error) {
	var env WebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode line webhook: %w", err)
	}
	return &env, nil
}

// TextMessage is an outbound text message.
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewText builds an outbound text message.
func NewText(text string) TextMessage {
	return TextMessage{Type: MessageText, Text: text}
}
