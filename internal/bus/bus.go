// Package bus hands webhook events to background workers over a bounded
// in-process queue.
package bus

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultQueueSize is used when New is given a non-positive size.
const DefaultQueueSize = 256

// MessageBus is a bounded inbound queue. Publishing never blocks.
type MessageBus struct {
	inbound chan InboundMessage

	mu      sync.Mutex
	dropped int64
}

// New creates a bus with room for size pending messages.
func New(size int) *MessageBus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &MessageBus{inbound: make(chan InboundMessage, size)}
}

// PublishInbound enqueues msg. When the queue is full the message is dropped
// and logged; the return value reports whether it was accepted.
func (b *MessageBus) PublishInbound(msg InboundMessage) bool {
	select {
	case b.inbound <- msg:
		return true
	default:
		b.mu.Lock()
		b.dropped++
		dropped := b.dropped
		b.mu.Unlock()
		slog.Error("inbound queue full, dropping message",
			"channel", msg.Channel, "chat_id", msg.ChatID, "event_id", msg.EventID, "dropped_total", dropped)
		return false
	}
}

// ConsumeInbound blocks until a message is available or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// Pending returns the number of queued messages.
func (b *MessageBus) Pending() int { return len(b.inbound) }

// Dropped returns how many messages were rejected because the queue was full.
func (b *MessageBus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
