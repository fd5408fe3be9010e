package bus

import "context"

// InboundMessage is one webhook event accepted for background processing.
// Token is the channel access token; it never leaves the process.
type InboundMessage struct {
	Channel          string            `json:"channel"`
	Destination      string            `json:"destination"`
	EventID          string            `json:"event_id,omitempty"`
	EventType        string            `json:"event_type"`
	MessageType      string            `json:"message_type,omitempty"`
	SenderID         string            `json:"sender_id"`
	ChatID           string            `json:"chat_id"`
	PeerKind         string            `json:"peer_kind,omitempty"` // "direct" or "group"
	Content          string            `json:"content"`
	ReplyToken       string            `json:"-"`
	Token            string            `json:"-"`
	TenantID         string            `json:"tenant_id"`
	AgentID          string            `json:"agent_id,omitempty"` // persona name bound to the channel
	PrivilegedUserID string            `json:"privileged_user_id,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// MessageHandler handles an inbound message.
type MessageHandler func(context.Context, InboundMessage) error

// MessageRouter abstracts the inbound queue between the webhook and the workers.
type MessageRouter interface {
	PublishInbound(msg InboundMessage) bool
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
}
