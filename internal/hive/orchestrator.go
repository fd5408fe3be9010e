// Package hive runs bounded round-robin conversations between the three hive
// personas and persists every session, turn and event.
package hive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/thammarongsak/waibon-safe-room/internal/audit"
	"github.com/thammarongsak/waibon-safe-room/internal/bootstrap"
	"github.com/thammarongsak/waibon-safe-room/internal/config"
	"github.com/thammarongsak/waibon-safe-room/internal/providers"
	"github.com/thammarongsak/waibon-safe-room/internal/store"
	"github.com/thammarongsak/waibon-safe-room/internal/tracing"
)

// Stop reasons reported in RunResult.
const (
	StopDone     = "done"
	StopMaxTurns = "max_turns"
	StopError    = "error"
)

// TopicError is the event topic of a failed turn.
const TopicError = "hive.error"

// DefaultTitle names sessions created without a title.
const DefaultTitle = "Hive Room"

// AuditChannel tags agent_logs rows written by hive turns.
const AuditChannel = "hive"

// finalizeTimeout bounds the writes that record a run's outcome.
const finalizeTimeout = 5 * time.Second

// PersonaLoader resolves a roster persona, falling back to a built-in definition.
type PersonaLoader interface {
	LoadOrDefault(ctx context.Context, tenantID, name string) (*store.PersonaData, error)
}

// Options tunes an Orchestrator.
type Options struct {
	TenantID      string
	MaxTurns      int // hard cap per run, clamped to config.MaxHiveTurns
	DefaultRounds int
	ContextLines  int
	Topic         string
	Temperature   float64
}

// OptionsFromConfig maps config sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TenantID:      cfg.Tenant.OwnerID,
		MaxTurns:      cfg.Hive.MaxTurns,
		DefaultRounds: cfg.Hive.DefaultRounds,
		ContextLines:  cfg.Hive.ContextLines,
		Topic:         cfg.Hive.Topic,
		Temperature:   cfg.LLM.HiveTemperature,
	}
}

// Orchestrator drives hive runs.
type Orchestrator struct {
	store    store.HiveStore
	personas PersonaLoader
	llm      providers.Generator
	audit    *audit.Recorder
	opts     Options
	tracer   trace.Tracer
}

func New(hs store.HiveStore, personas PersonaLoader, llm providers.Generator, rec *audit.Recorder, opts Options) *Orchestrator {
	if opts.MaxTurns <= 0 || opts.MaxTurns > config.MaxHiveTurns {
		opts.MaxTurns = config.MaxHiveTurns
	}
	if opts.DefaultRounds <= 0 {
		opts.DefaultRounds = 3
	}
	if opts.ContextLines <= 0 {
		opts.ContextLines = DefaultContextLines
	}
	if opts.Topic == "" {
		opts.Topic = bootstrap.HiveTopic
	}
	return &Orchestrator{
		store:    hs,
		personas: personas,
		llm:      llm,
		audit:    rec,
		opts:     opts,
		tracer:   tracing.Tracer(),
	}
}

// WithTracer overrides the tracer used for hive.turn spans.
func (o *Orchestrator) WithTracer(t trace.Tracer) *Orchestrator {
	o.tracer = t
	return o
}

// Bound returns how many turns a run asking for rounds may take.
func (o *Orchestrator) Bound(rounds int) int {
	if rounds <= 0 {
		rounds = o.opts.DefaultRounds
	}
	if rounds > o.opts.MaxTurns {
		return o.opts.MaxTurns
	}
	return rounds
}

// EnsureSession reuses the group's most recent session, marking it running,
// or creates a new one.
func (o *Orchestrator) EnsureSession(ctx context.Context, groupID, title string) (*store.HiveSessionData, error) {
	sess, err := o.store.LatestSessionByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("lookup hive session: %w", err)
	}
	if sess != nil {
		if sess.Status != store.HiveStatusRunning {
			if err := o.store.SetSessionStatus(ctx, sess.ID, store.HiveStatusRunning); err != nil {
				return nil, fmt.Errorf("resume hive session: %w", err)
			}
			sess.Status = store.HiveStatusRunning
		}
		return sess, nil
	}

	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	sess = &store.HiveSessionData{GroupID: groupID, Title: title, Status: store.HiveStatusRunning}
	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create hive session: %w", err)
	}
	slog.Info("hive: session created", "session", sess.ID, "group", groupID)
	return sess, nil
}

// RunRequest starts or continues a group's hive session.
type RunRequest struct {
	GroupID string
	Title   string
	Rounds  int
	Prompt  string
}

// RunResult is the outcome of one run.
type RunResult struct {
	SessionID  uuid.UUID            `json:"sessionId"`
	Status     string               `json:"status"`
	StopReason string               `json:"stopReason"`
	Error      string               `json:"error,omitempty"`
	Turns      []store.HiveTurnData `json:"turns"`
	Transcript []store.HiveTurnData `json:"transcript"`
}

// Summary renders this run's turns as a chat message.
func (r *RunResult) Summary() string {
	lines := make([]string, 0, len(r.Turns)+2)
	lines = append(lines, "สรุปเวที Hive:")
	for _, t := range r.Turns {
		lines = append(lines, fmt.Sprintf("• %s: %s", t.AgentName, FirstLine(t.Output)))
	}
	lines = append(lines, "— จบรอบ —")
	return strings.Join(lines, "\n")
}

// Run takes up to Bound(req.Rounds) turns starting with the leader. It returns
// an error only when the session cannot be prepared; a failed turn ends the
// run with StopError and is reported in the result.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if strings.TrimSpace(req.GroupID) == "" {
		return nil, fmt.Errorf("hive run: group id required")
	}
	sess, err := o.EnsureSession(ctx, req.GroupID, req.Title)
	if err != nil {
		return nil, err
	}

	roster, err := o.resolveRoster(ctx)
	if err != nil {
		return nil, err
	}

	prior, err := o.store.ListTurns(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list hive turns: %w", err)
	}
	contextLines := make([]string, 0, len(prior))
	lastTurn := sess.LastTurn
	for _, t := range prior {
		contextLines = append(contextLines, ContextLine(t))
		if t.TurnNo > lastTurn {
			lastTurn = t.TurnNo
		}
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}

	res := &RunResult{SessionID: sess.ID, Status: store.HiveStatusRunning, StopReason: StopMaxTurns}
	current := Roster[0]
	bound := o.Bound(req.Rounds)

	for i := 0; i < bound; i++ {
		turnNo := lastTurn + 1 + i
		turn, decision, err := o.takeTurn(ctx, sess.ID, req.GroupID, turnNo, roster[current], contextLines, prompt)
		if err != nil {
			slog.Error("hive: turn failed", "session", sess.ID, "turn", turnNo, "agent", current, "error", err)
			o.recordFailure(ctx, sess.ID, turnNo, current, err)
			res.StopReason = StopError
			res.Error = err.Error()
			res.Status = store.HiveStatusDone
			break
		}
		res.Turns = append(res.Turns, *turn)
		contextLines = append(contextLines, ContextLine(*turn))

		if decision.Terminate {
			res.StopReason = StopDone
			res.Status = store.HiveStatusDone
			break
		}
		current = decision.Next
	}

	// The outcome is recorded even when the caller has gone away.
	fctx, cancel := detached(ctx)
	defer cancel()
	if res.Status == store.HiveStatusDone {
		if err := o.store.SetSessionStatus(fctx, sess.ID, store.HiveStatusDone); err != nil {
			slog.Warn("hive: mark session done failed", "session", sess.ID, "error", err)
		}
	}

	transcript, err := o.store.ListTurns(fctx, sess.ID)
	if err != nil {
		slog.Warn("hive: reload transcript failed", "session", sess.ID, "error", err)
		transcript = append(prior, res.Turns...)
	}
	res.Transcript = transcript

	slog.Info("hive: run finished", "session", sess.ID, "group", req.GroupID,
		"turns", len(res.Turns), "stop", res.StopReason)
	return res, nil
}

func (o *Orchestrator) resolveRoster(ctx context.Context) (map[string]*store.PersonaData, error) {
	resolved := make([]*store.PersonaData, len(Roster))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range Roster {
		g.Go(func() error {
			p, err := o.personas.LoadOrDefault(gctx, o.opts.TenantID, name)
			if err != nil {
				return fmt.Errorf("resolve hive persona %s: %w", name, err)
			}
			resolved[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]*store.PersonaData, len(Roster))
	for i, name := range Roster {
		out[name] = resolved[i]
	}
	return out, nil
}

func (o *Orchestrator) takeTurn(ctx context.Context, sessionID uuid.UUID, groupID string, turnNo int,
	p *store.PersonaData, contextLines []string, prompt string) (*store.HiveTurnData, Decision, error) {
	ctx, span := o.tracer.Start(ctx, "hive.turn", trace.WithAttributes(
		attribute.String("hive.session_id", sessionID.String()),
		attribute.Int("hive.turn", turnNo),
		attribute.String("hive.agent", p.Name),
	))
	defer span.End()

	system := BuildPrompt(p, contextLines, o.opts.ContextLines)
	start := time.Now()
	gen, err := o.llm.Generate(ctx, providers.GenerateRequest{
		Model:       p.Model,
		System:      system,
		UserText:    prompt,
		Temperature: providers.Float(o.opts.Temperature),
	})
	entry := store.AgentLogData{
		OwnerID:   o.opts.TenantID,
		AgentName: p.Name,
		Channel:   AuditChannel,
		UserUID:   groupID,
		InputText: prompt,
		Model:     p.Model,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if !p.Builtin && p.ID != uuid.Nil {
		id := p.ID
		entry.AgentID = &id
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.Error = err.Error()
		o.audit.Record(ctx, entry)
		return nil, Decision{}, err
	}

	turn := &store.HiveTurnData{SessionID: sessionID, TurnNo: turnNo, AgentName: p.Name, Output: gen.Text}
	if err := o.store.AppendTurn(ctx, turn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.Error = err.Error()
		o.audit.Record(ctx, entry)
		return nil, Decision{}, fmt.Errorf("persist hive turn: %w", err)
	}

	decision := ParseDecision(gen.Text, p.Name)
	to := decision.Next
	if decision.Terminate {
		to = "ALL"
	}
	o.publish(ctx, store.HiveEventData{
		Topic:     o.opts.Topic,
		FromAgent: p.Name,
		ToAgent:   to,
		Payload:   payload(map[string]any{"session_id": sessionID, "turn": turnNo, "text": decision.Text, "explicit": decision.Explicit}),
	})

	entry.OK = true
	entry.OutputText = gen.Text
	entry.Model = gen.Model
	entry.TokensPrompt = gen.Usage.PromptTokens
	entry.TokensCompletion = gen.Usage.CompletionTokens
	o.audit.Record(ctx, entry)

	span.SetAttributes(
		attribute.String("hive.next", to),
		attribute.Bool("hive.explicit", decision.Explicit),
	)
	return turn, decision, nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, sessionID uuid.UUID, turnNo int, agent string, cause error) {
	ctx, cancel := detached(ctx)
	defer cancel()
	o.publish(ctx, store.HiveEventData{
		Topic:     TopicError,
		FromAgent: agent,
		ToAgent:   "ALL",
		Payload:   payload(map[string]any{"session_id": sessionID, "turn": turnNo, "error": cause.Error()}),
	})
}

func (o *Orchestrator) publish(ctx context.Context, ev store.HiveEventData) {
	if err := o.store.AppendEvents(ctx, []store.HiveEventData{ev}); err != nil {
		slog.Warn("hive: publish event failed", "topic", ev.Topic, "from", ev.FromAgent, "error", err)
	}
}

// detached keeps ctx values but not its cancellation, bounded by finalizeTimeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}

func payload(v any) json.RawMessage {
	return json.RawMessage(store.EncodeJSON(v))
}
