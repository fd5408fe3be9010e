package agent

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/thammarongsak/waibon-safe-room/internal/bus"
)

// DefaultWorkers is used when RunConsumers is given a non-positive count.
const DefaultWorkers = 4

// Handler processes one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg bus.InboundMessage) error
}

// RunConsumers starts n workers draining router until ctx is done. Redelivered
// webhook events are dropped by event id. The returned func waits for every
// worker to exit.
func RunConsumers(ctx context.Context, router bus.MessageRouter, h Handler, n int) (wait func()) {
	if n <= 0 {
		n = DefaultWorkers
	}
	// LINE retries deliveries; 20 minutes covers its redelivery window.
	dedupe := bus.NewDedupeCache(20*time.Minute, 5000)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			slog.Debug("inbound consumer started", "worker", worker)
			for {
				msg, ok := router.ConsumeInbound(ctx)
				if !ok {
					return
				}
				if msg.EventID != "" && dedupe.IsDuplicate(msg.Destination+":"+msg.EventID) {
					slog.Info("inbound: duplicate event dropped", "event_id", msg.EventID)
					continue
				}
				processOne(ctx, h, msg)
			}
		}(i)
	}
	slog.Info("inbound consumers running", "workers", n)
	return wg.Wait
}

func processOne(ctx context.Context, h Handler, msg bus.InboundMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("inbound: handler panic", "panic", rec, "event_id", msg.EventID,
				"stack", string(debug.Stack()))
		}
	}()
	if err := h.Handle(ctx, msg); err != nil {
		slog.Error("inbound: handle failed", "event_id", msg.EventID, "chat_id", msg.ChatID, "error", err)
	}
}
