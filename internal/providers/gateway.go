package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/thammarongsak/waibon-safe-room/internal/config"
	"github.com/thammarongsak/waibon-safe-room/internal/tracing"
)

// GenerateRequest is one completion: a system prompt, prior turns and the new user text.
type GenerateRequest struct {
	Model       string // empty uses the provider default
	System      string
	History     []Message
	UserText    string
	Temperature *float64
}

// Generation is the answer of a successful Generate call.
type Generation struct {
	Text     string
	Model    string
	Usage    Usage
	Fallback bool // answered by the fallback model
	Latency  time.Duration
}

// Gateway calls a Provider with the primary model and retries exactly once
// with the fallback model on any failure.
type Gateway struct {
	provider      Provider
	fallbackModel string
	tracer        trace.Tracer
}

func NewGateway(p Provider, fallbackModel string) *Gateway {
	return &Gateway{
		provider:      p,
		fallbackModel: fallbackModel,
		tracer:        tracing.Tracer(),
	}
}

// NewGatewayFromConfig builds an OpenAI-compatible gateway, or an echo gateway
// when no API key is configured.
func NewGatewayFromConfig(cfg config.LLMConfig) *Gateway {
	if cfg.APIKey == "" {
		slog.Warn("llm: no API key configured, using echo provider")
		return NewGateway(NewEchoProvider(), "")
	}
	p := NewOpenAIProvider("openai", cfg.APIKey, cfg.APIBase, cfg.Model, cfg.Timeout.D())
	return NewGateway(p, cfg.FallbackModel)
}

// WithTracer overrides the tracer used for llm.generate spans.
func (g *Gateway) WithTracer(t trace.Tracer) *Gateway {
	g.tracer = t
	return g
}

func (g *Gateway) Provider() Provider { return g.provider }

func (g *Gateway) FallbackModel() string { return g.fallbackModel }

// Generate never synthesizes text: it returns the provider's answer or an error
// after at most two attempts.
func (g *Gateway) Generate(ctx context.Context, req GenerateRequest) (*Generation, error) {
	msgs := make([]Message, 0, len(req.History)+2)
	if s := strings.TrimSpace(req.System); s != "" {
		msgs = append(msgs, Message{Role: "system", Content: s})
	}
	for _, m := range req.History {
		if m.Content == "" {
			continue
		}
		msgs = append(msgs, m)
	}
	msgs = append(msgs, Message{Role: "user", Content: req.UserText})

	model := req.Model
	if model == "" {
		model = g.provider.DefaultModel()
	}

	start := time.Now()
	resp, err := g.attempt(ctx, msgs, model, req.Temperature, false)
	fallback := false
	if err != nil {
		if g.fallbackModel == "" || ctx.Err() != nil {
			return nil, fmt.Errorf("generate with %s: %w", model, err)
		}
		slog.Warn("llm: primary model failed, retrying with fallback",
			"model", model, "fallback", g.fallbackModel, "error", err)
		var ferr error
		resp, ferr = g.attempt(ctx, msgs, g.fallbackModel, req.Temperature, true)
		if ferr != nil {
			return nil, fmt.Errorf("generate with %s and fallback %s: %w", model, g.fallbackModel, errors.Join(err, ferr))
		}
		model = g.fallbackModel
		fallback = true
	}

	gen := &Generation{
		Text:     strings.TrimSpace(resp.Content),
		Model:    model,
		Fallback: fallback,
		Latency:  time.Since(start),
	}
	if resp.Model != "" {
		gen.Model = resp.Model
	}
	if resp.Usage != nil {
		gen.Usage = *resp.Usage
	}
	return gen, nil
}

func (g *Gateway) attempt(ctx context.Context, msgs []Message, model string, temp *float64, fallback bool) (*ChatResponse, error) {
	ctx, span := g.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.provider", g.provider.Name()),
		attribute.String("llm.model", model),
		attribute.Bool("llm.fallback", fallback),
		attribute.Int("llm.messages", len(msgs)),
	))
	defer span.End()

	resp, err := g.provider.Chat(ctx, ChatRequest{
		Messages:    msgs,
		Model:       model,
		Temperature: temp,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			span.SetAttributes(attribute.Int("http.status_code", httpErr.Status))
		}
		return nil, err
	}
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.tokens.prompt", resp.Usage.PromptTokens),
			attribute.Int("llm.tokens.completion", resp.Usage.CompletionTokens),
		)
	}
	return resp, nil
}

// Generator is implemented by *Gateway; callers depend on it for fakes in tests.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Generation, error)
}

var _ Generator = (*Gateway)(nil)
