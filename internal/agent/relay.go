// Package agent turns one accepted LINE event into a reply: persona, memory,
// LLM call, audit and delivery through the LINE transport.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/thammarongsak/waibon-safe-room/internal/audit"
	"github.com/thammarongsak/waibon-safe-room/internal/bus"
	"github.com/thammarongsak/waibon-safe-room/internal/channels"
	"github.com/thammarongsak/waibon-safe-room/internal/channels/line"
	"github.com/thammarongsak/waibon-safe-room/internal/config"
	"github.com/thammarongsak/waibon-safe-room/internal/hive"
	"github.com/thammarongsak/waibon-safe-room/internal/memory"
	"github.com/thammarongsak/waibon-safe-room/internal/providers"
	"github.com/thammarongsak/waibon-safe-room/internal/sessions"
	"github.com/thammarongsak/waibon-safe-room/internal/store"
	"github.com/thammarongsak/waibon-safe-room/internal/tracing"
)

// Roles of a LINE sender relative to the channel's privileged user.
const (
	RoleOwner  = "owner"
	RoleFriend = "friend"
)

// announceTTL bounds how long a user counts as already announced.
const announceTTL = 24 * time.Hour

// Messenger delivers text chunks over LINE.
type Messenger interface {
	Reply(ctx context.Context, token, replyToken string, chunks []string) error
	Push(ctx context.Context, token, to string, chunks []string) error
}

// PersonaLoader resolves a tenant persona by name.
type PersonaLoader interface {
	Load(ctx context.Context, tenantID, name string) (*store.PersonaData, error)
}

// HiveRunner runs a hive round for a chat.
type HiveRunner interface {
	Run(ctx context.Context, req hive.RunRequest) (*hive.RunResult, error)
}

// Deps are the collaborators of a Relay. Hive and Audit may be nil.
type Deps struct {
	Personas PersonaLoader
	Memory   *memory.Memory
	LLM      providers.Generator
	Hive     HiveRunner
	Line     Messenger
	Audit    *audit.Recorder
}

// Options tunes a Relay.
type Options struct {
	DefaultPersona string
	FatherUserID   string // privileged user when the channel has none
	Temperature    float64
	MemoryWindow   int
	ChunkSize      int
	FastAck        time.Duration // 0 waits for the answer before replying
	AckText        string
	AnnounceUserID bool
	RateLimitRPM   int
	RateLimitBurst int
}

// OptionsFromConfig maps config sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DefaultPersona: cfg.Line.DefaultPersona,
		FatherUserID:   cfg.Tenant.FatherUserID,
		Temperature:    cfg.LLM.Temperature,
		MemoryWindow:   cfg.Memory.Window,
		ChunkSize:      cfg.Line.ChunkSize,
		FastAck:        cfg.Line.FastAck.D(),
		AckText:        cfg.Line.AckText,
		AnnounceUserID: cfg.Line.AnnounceUserID,
		RateLimitRPM:   cfg.Gateway.RateLimitRPM,
		RateLimitBurst: cfg.Gateway.RateLimitBurst,
	}
}

// Relay handles inbound LINE events.
type Relay struct {
	deps      Deps
	opts      Options
	limiter   *channels.SenderRateLimiter
	announced *bus.DedupeCache
	tracer    trace.Tracer
}

func NewRelay(deps Deps, opts Options) *Relay {
	if opts.DefaultPersona == "" {
		opts.DefaultPersona = "Waibon"
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = channels.DefaultChunkSize
	}
	if opts.MemoryWindow <= 0 {
		opts.MemoryWindow = memory.DefaultWindow
	}
	r := &Relay{
		deps:    deps,
		opts:    opts,
		limiter: channels.NewSenderRateLimiter(opts.RateLimitRPM, opts.RateLimitBurst),
		tracer:  tracing.Tracer(),
	}
	if opts.AnnounceUserID {
		r.announced = bus.NewDedupeCache(announceTTL, 4096)
	}
	return r
}

// WithTracer overrides the tracer used for relay.handle spans.
func (r *Relay) WithTracer(t trace.Tracer) *Relay {
	r.tracer = t
	return r
}

// Handle processes one event. Delivery failures are logged, never returned.
func (r *Relay) Handle(ctx context.Context, msg bus.InboundMessage) error {
	if msg.ReplyToken == "" || msg.SenderID == "" {
		slog.Debug("relay: skip event without reply token or user", "event_id", msg.EventID, "type", msg.EventType)
		return nil
	}
	if msg.EventType != line.EventMessage {
		slog.Debug("relay: ignore non-message event", "type", msg.EventType)
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "relay.handle", trace.WithAttributes(
		attribute.String("line.destination", msg.Destination),
		attribute.String("line.peer_kind", msg.PeerKind),
		attribute.String("line.message_type", msg.MessageType),
	))
	defer span.End()

	if msg.MessageType != line.MessageText {
		r.replyText(ctx, msg, TextNonText)
		return nil
	}

	text := strings.TrimSpace(msg.Content)
	if strings.EqualFold(text, "myid") {
		r.replyText(ctx, msg, fmt.Sprintf(textUserIDFormat, msg.SenderID))
		return nil
	}

	if r.announced != nil && !r.announced.IsDuplicate(msg.TenantID+":"+msg.SenderID) {
		if err := r.deps.Line.Push(ctx, msg.Token, msg.SenderID, []string{fmt.Sprintf(textUserIDFormat, msg.SenderID)}); err != nil {
			slog.Warn("relay: announce user id failed", "user", msg.SenderID, "error", err)
		}
	}

	if !r.limiter.Allow(msg.Destination + ":" + msg.SenderID) {
		slog.Warn("relay: rate limited", "destination", msg.Destination, "user", msg.SenderID)
		span.SetAttributes(attribute.Bool("relay.rate_limited", true))
		return nil
	}

	role, privileged := r.role(msg)
	span.SetAttributes(attribute.String("relay.role", role))

	produce := func(ctx context.Context) string {
		return r.Think(ctx, ThinkRequest{
			TenantID:    msg.TenantID,
			Destination: msg.Destination,
			Persona:     r.personaName(msg),
			UserID:      msg.SenderID,
			Text:        text,
			IsFather:    role == RoleOwner,
		})
	}
	if prompt, ok := ParseHiveCommand(text); ok && r.deps.Hive != nil {
		span.SetAttributes(attribute.Bool("relay.hive", true))
		produce = func(ctx context.Context) string { return r.runHive(ctx, msg, prompt) }
	}

	friendPrefix := ""
	if role == RoleFriend && privileged {
		friendPrefix = TextFriendPrefix
	}
	r.respond(ctx, msg, func(ctx context.Context) string {
		return friendPrefix + produce(ctx)
	})
	return nil
}

// role reports the sender's role and whether a privileged user is known at all.
func (r *Relay) role(msg bus.InboundMessage) (string, bool) {
	privileged := msg.PrivilegedUserID
	if privileged == "" {
		privileged = r.opts.FatherUserID
	}
	if privileged != "" && msg.SenderID == privileged {
		return RoleOwner, true
	}
	return RoleFriend, privileged != ""
}

func (r *Relay) personaName(msg bus.InboundMessage) string {
	if msg.AgentID != "" {
		return msg.AgentID
	}
	return r.opts.DefaultPersona
}

// ParseHiveCommand recognizes "hive <prompt>" and "/hive <prompt>".
func ParseHiveCommand(text string) (string, bool) {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "/")
	if len(t) < 4 || !strings.EqualFold(t[:4], "hive") {
		return "", false
	}
	rest := t[4:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\n' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func (r *Relay) runHive(ctx context.Context, msg bus.InboundMessage, prompt string) string {
	res, err := r.deps.Hive.Run(ctx, hive.RunRequest{GroupID: msg.ChatID, Prompt: prompt})
	if err != nil {
		slog.Error("relay: hive run failed", "chat", msg.ChatID, "error", err)
		return fmt.Sprintf("ขอโทษครับพ่อ เปิดเวที Hive ไม่สำเร็จ (%v)", err)
	}
	return res.Summary()
}

// respond delivers produce's answer. With a fast-ack window, an answer that is
// not ready in time is preceded by the ack text and pushed when done.
func (r *Relay) respond(ctx context.Context, msg bus.InboundMessage, produce func(context.Context) string) {
	answers := make(chan string, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("relay: panic while producing answer", "panic", rec, "event_id", msg.EventID)
				answers <- "ขอโทษครับพ่อ ระบบขัดข้องชั่วคราว"
			}
		}()
		answers <- produce(ctx)
	}()

	if r.opts.FastAck <= 0 {
		select {
		case answer := <-answers:
			r.deliver(ctx, msg, answer)
		case <-ctx.Done():
		}
		return
	}

	timer := time.NewTimer(r.opts.FastAck)
	defer timer.Stop()
	select {
	case answer := <-answers:
		r.deliver(ctx, msg, answer)
	case <-timer.C:
		if r.opts.AckText != "" {
			r.replyText(ctx, msg, r.opts.AckText)
		}
		select {
		case answer := <-answers:
			r.push(ctx, msg, channels.ChunkText(answer, r.opts.ChunkSize))
		case <-ctx.Done():
		}
	case <-ctx.Done():
	}
}

// deliver replies with up to MaxReplyMessages chunks and pushes the rest.
func (r *Relay) deliver(ctx context.Context, msg bus.InboundMessage, answer string) {
	chunks := channels.ChunkText(answer, r.opts.ChunkSize)
	if len(chunks) == 0 {
		return
	}
	head, tail := chunks, []string(nil)
	if len(chunks) > line.MaxReplyMessages {
		head, tail = chunks[:line.MaxReplyMessages], chunks[line.MaxReplyMessages:]
	}
	if err := r.deps.Line.Reply(ctx, msg.Token, msg.ReplyToken, head); err != nil {
		slog.Warn("relay: reply failed", "destination", msg.Destination, "user", msg.SenderID, "error", err)
	}
	if len(tail) > 0 {
		r.push(ctx, msg, tail)
	}
}

func (r *Relay) push(ctx context.Context, msg bus.InboundMessage, chunks []string) {
	to := msg.ChatID
	if to == "" {
		to = msg.SenderID
	}
	if err := r.deps.Line.Push(ctx, msg.Token, to, chunks); err != nil {
		slog.Warn("relay: push failed", "destination", msg.Destination, "to", to, "error", err)
	}
}

func (r *Relay) replyText(ctx context.Context, msg bus.InboundMessage, text string) {
	if err := r.deps.Line.Reply(ctx, msg.Token, msg.ReplyToken, []string{text}); err != nil {
		slog.Warn("relay: reply failed", "destination", msg.Destination, "user", msg.SenderID, "error", err)
	}
}

// ThinkRequest is one direct question to a persona.
type ThinkRequest struct {
	TenantID    string
	Destination string // bot user id of the channel; memory is kept per channel
	Persona     string
	UserID      string
	Text        string
	IsFather    bool
}

// Think answers one message as the requested persona. It always returns text:
// failures become an apology and an ok=false audit row.
func (r *Relay) Think(ctx context.Context, req ThinkRequest) string {
	start := time.Now()
	entry := store.AgentLogData{
		OwnerID:   req.TenantID,
		AgentName: req.Persona,
		Channel:   channels.ChannelLine,
		UserUID:   req.UserID,
		InputText: req.Text,
	}

	p, err := r.deps.Personas.Load(ctx, req.TenantID, req.Persona)
	if err != nil {
		slog.Error("relay: load persona failed", "persona", req.Persona, "tenant", req.TenantID, "error", err)
		entry.Error = err.Error()
		entry.LatencyMS = time.Since(start).Milliseconds()
		r.deps.Audit.Go(ctx, entry)
		return fmt.Sprintf("ขอโทษครับ ลูกโหลดบุคลิก %s ไม่สำเร็จ (%v)", req.Persona, err)
	}
	if p.ID != uuid.Nil && !p.Builtin {
		id := p.ID
		entry.AgentID = &id
	}
	entry.AgentName = p.Name
	entry.Model = p.Model

	subject := sessions.BuildSubjectKey(p.Name, channels.ChannelLine, req.Destination, req.UserID, p.ID.String())
	turns := r.deps.Memory.Recent(ctx, req.TenantID, subject, r.opts.MemoryWindow)
	history := make([]providers.Message, 0, len(turns))
	for _, t := range turns {
		history = append(history, providers.Message{Role: t.Role, Content: t.Text})
	}

	r.deps.Memory.Append(ctx, req.TenantID, subject, memory.RoleUser, req.Text)

	gen, err := r.deps.LLM.Generate(ctx, providers.GenerateRequest{
		Model:       p.Model,
		System:      BuildSystemPrompt(p, req.IsFather),
		History:     history,
		UserText:    UserPrefix(req.IsFather) + req.Text,
		Temperature: providers.Float(r.opts.Temperature),
	})
	entry.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		slog.Error("relay: generate failed", "persona", p.Name, "error", err)
		entry.Error = err.Error()
		r.deps.Audit.Go(ctx, entry)
		return fmt.Sprintf("ขอโทษครับพ่อ ตอนนี้ลูกตอบไม่ได้ชั่วคราว (%v)", err)
	}

	answer := SanitizeAnswer(gen.Text)
	if answer == "" {
		answer = TextEmptyAnswer
	}
	if prev := memory.LastAnswer(turns); Similarity(prev, answer) > RepeatThreshold {
		answer += TextRepeatNote
	}
	r.deps.Memory.Append(ctx, req.TenantID, subject, memory.RoleAssistant, answer)

	entry.OK = true
	entry.OutputText = answer
	entry.Model = gen.Model
	entry.TokensPrompt = gen.Usage.PromptTokens
	entry.TokensCompletion = gen.Usage.CompletionTokens
	r.deps.Audit.Go(ctx, entry)

	slog.Info("relay: answered", "persona", p.Name, "user", req.UserID,
		"model", gen.Model, "fallback", gen.Fallback, "latency_ms", entry.LatencyMS)
	return answer
}
