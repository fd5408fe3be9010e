package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/thammarongsak/waibon-safe-room/internal/bus"
	"github.com/thammarongsak/waibon-safe-room/internal/channels"
	"github.com/thammarongsak/waibon-safe-room/internal/channels/line"
	"github.com/thammarongsak/waibon-safe-room/internal/store"
	"github.com/thammarongsak/waibon-safe-room/internal/tracing"
	"github.com/thammarongsak/waibon-safe-room/pkg/protocol"
)

// ChannelResolver maps a webhook destination to its channel binding.
type ChannelResolver interface {
	Resolve(ctx context.Context, destination string) (*store.ChannelData, error)
}

// Publisher accepts verified events for background processing.
type Publisher interface {
	PublishInbound(msg bus.InboundMessage) bool
}

// WebhookHandler verifies LINE webhooks and queues their events.
// It answers 200 for everything except a bad signature, so LINE never retries.
type WebhookHandler struct {
	channels ChannelResolver
	queue    Publisher
	maxBody  int64
	tracer   trace.Tracer
}

func NewWebhookHandler(channels ChannelResolver, queue Publisher, maxBody int64) *WebhookHandler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &WebhookHandler{channels: channels, queue: queue, maxBody: maxBody, tracer: tracing.Tracer()}
}

// WithTracer overrides the tracer used for webhook.line spans.
func (h *WebhookHandler) WithTracer(t trace.Tracer) *WebhookHandler {
	h.tracer = t
	return h
}

// RegisterRoutes registers the webhook and its alias.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+protocol.RouteLineWebhook, h.handle)
	mux.HandleFunc("POST "+protocol.RouteLineWebhookAlias, h.handle)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "webhook.line")
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		slog.Warn("line webhook: read body failed", "error", err)
		writeJSON(w, http.StatusOK, protocol.WebhookResponse{Error: "read body failed"})
		return
	}
	env, err := line.ParseWebhook(body)
	if err != nil {
		slog.Warn("line webhook: bad payload", "error", err)
		writeJSON(w, http.StatusOK, protocol.WebhookResponse{Error: "bad payload"})
		return
	}
	span.SetAttributes(
		attribute.String("line.destination", env.Destination),
		attribute.Int("line.events", len(env.Events)),
	)

	ch, err := h.channels.Resolve(ctx, env.Destination)
	switch {
	case errors.Is(err, channels.ErrChannelDisabled):
		writeJSON(w, http.StatusOK, protocol.WebhookResponse{OK: true, Skipped: true, Warn: protocol.WarnChannelDisabled})
		return
	case errors.Is(err, channels.ErrChannelNotFound):
		slog.Warn("line webhook: unknown destination", "destination", env.Destination)
		writeJSON(w, http.StatusOK, protocol.WebhookResponse{OK: true, Skipped: true, Warn: protocol.WarnChannelNotConfigured})
		return
	case err != nil:
		slog.Error("line webhook: resolve channel failed", "destination", env.Destination, "error", err)
		span.SetStatus(codes.Error, err.Error())
		writeJSON(w, http.StatusOK, protocol.WebhookResponse{Error: err.Error()})
		return
	}

	if !line.Verify(ch.Secret, body, r.Header.Get(line.SignatureHeader)) {
		slog.Warn("line webhook: bad signature", "destination", env.Destination)
		span.SetStatus(codes.Error, "bad signature")
		writeJSON(w, http.StatusUnauthorized, protocol.WebhookResponse{Error: "bad signature"})
		return
	}

	resp := protocol.WebhookResponse{OK: true}
	for _, ev := range env.Events {
		if h.queue.PublishInbound(toInbound(ch, env.Destination, ev)) {
			resp.Queued++
		} else {
			resp.Warn = protocol.WarnQueueFull
		}
	}
	span.SetAttributes(attribute.Int("line.queued", resp.Queued))
	writeJSON(w, http.StatusOK, resp)
}

func toInbound(ch *store.ChannelData, destination string, ev line.Event) bus.InboundMessage {
	msg := bus.InboundMessage{
		Channel:          channels.ChannelLine,
		Destination:      destination,
		EventID:          ev.WebhookEventID,
		EventType:        ev.Type,
		SenderID:         ev.Source.UserID,
		ChatID:           ev.Source.ChatID(),
		PeerKind:         ev.Source.PeerKind(),
		ReplyToken:       ev.ReplyToken,
		Token:            ch.AccessToken,
		TenantID:         ch.OwnerID,
		AgentID:          ch.AgentName,
		PrivilegedUserID: ch.PrivilegedUserID,
		Metadata:         map[string]string{"timestamp": strconv.FormatInt(ev.Timestamp, 10)},
	}
	if ev.Message != nil {
		msg.MessageType = ev.Message.Type
		msg.Content = ev.Message.Text
		msg.Metadata["message_id"] = ev.Message.ID
	}
	if ev.DeliveryContext != nil && ev.DeliveryContext.IsRedelivery {
		msg.Metadata["redelivery"] = "true"
	}
	return msg
}
