package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordedCall struct {
	Model       string                   `json:"model"`
	Messages    []map[string]interface{} `json:"messages"`
	Temperature *float64                 `json:"temperature"`
}

// fakeOpenAI answers per model: a status code and a raw body.
type fakeOpenAI struct {
	mu      sync.Mutex
	calls   []recordedCall
	answers map[string]func(w http.ResponseWriter)
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/chat/completions" {
		http.NotFound(w, r)
		return
	}
	if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var call recordedCall
	_ = json.NewDecoder(r.Body).Decode(&call)
	f.mu.Lock()
	f.calls = append(f.calls, call)
	answer := f.answers[call.Model]
	f.mu.Unlock()
	if answer == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	answer(w)
}

func ok(content string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18},
		})
	}
}

func status(code int) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}
}

func raw(body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(body))
	}
}

func newTestGateway(t *testing.T, fake *fakeOpenAI) (*Gateway, *tracetest.SpanRecorder) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	p := NewOpenAIProvider("openai", "sk-test", srv.URL+"/", "gpt-primary", 0)
	return NewGateway(p, "gpt-fallback").WithTracer(tp.Tracer("test")), sr
}

func TestGeneratePrimarySucceeds(t *testing.T) {
	fake := &fakeOpenAI{answers: map[string]func(http.ResponseWriter){"gpt-primary": ok("  สวัสดีครับพ่อ \n")}}
	gw, sr := newTestGateway(t, fake)

	gen, err := gw.Generate(context.Background(), GenerateRequest{
		System:      "sys",
		History:     []Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: ""}, {Role: "assistant", Content: "b"}},
		UserText:    "hello",
		Temperature: Float(0.45),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Text != "สวัสดีครับพ่อ" || gen.Model != "gpt-primary" || gen.Fallback {
		t.Errorf("gen = %+v", gen)
	}
	if gen.Usage.PromptTokens != 11 || gen.Usage.CompletionTokens != 7 {
		t.Errorf("usage = %+v", gen.Usage)
	}

	if len(fake.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(fake.calls))
	}
	call := fake.calls[0]
	roles := make([]string, 0, len(call.Messages))
	for _, m := range call.Messages {
		roles = append(roles, m["role"].(string))
	}
	if got := strings.Join(roles, ","); got != "system,user,assistant,user" {
		t.Errorf("roles = %s", got)
	}
	if call.Temperature == nil || *call.Temperature != 0.45 {
		t.Errorf("temperature = %v", call.Temperature)
	}

	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Name() != "llm.generate" {
		t.Fatalf("spans = %v", spans)
	}
}

func TestGenerateFallsBackExactlyOnce(t *testing.T) {
	tests := []struct {
		name    string
		primary func(http.ResponseWriter)
	}{
		{"server error", status(http.StatusInternalServerError)},
		{"rate limited", status(http.StatusTooManyRequests)},
		{"empty choices", raw(`{"choices":[]}`)},
		{"garbage", raw(`not json`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeOpenAI{answers: map[string]func(http.ResponseWriter){
				"gpt-primary":  tt.primary,
				"gpt-fallback": ok("fallback answer"),
			}}
			gw, sr := newTestGateway(t, fake)

			gen, err := gw.Generate(context.Background(), GenerateRequest{UserText: "hi"})
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if gen.Text != "fallback answer" || !gen.Fallback || gen.Model != "gpt-fallback" {
				t.Errorf("gen = %+v", gen)
			}
			if len(fake.calls) != 2 {
				t.Errorf("calls = %d, want 2", len(fake.calls))
			}
			if len(sr.Ended()) != 2 {
				t.Errorf("spans = %d, want 2", len(sr.Ended()))
			}
		})
	}
}

func TestGenerateBothFail(t *testing.T) {
	fake := &fakeOpenAI{answers: map[string]func(http.ResponseWriter){
		"gpt-primary":  status(http.StatusBadGateway),
		"gpt-fallback": status(http.StatusServiceUnavailable),
	}}
	gw, _ := newTestGateway(t, fake)

	_, err := gw.Generate(context.Background(), GenerateRequest{UserText: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error %v is not an HTTPError", err)
	}
	if len(fake.calls) != 2 {
		t.Errorf("calls = %d, want exactly 2 (no further retries)", len(fake.calls))
	}
}

func TestGenerateEmptyChoicesWithoutFallback(t *testing.T) {
	fake := &fakeOpenAI{answers: map[string]func(http.ResponseWriter){"gpt-primary": raw(`{"choices":[]}`)}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	gw := NewGateway(NewOpenAIProvider("openai", "sk-test", srv.URL, "gpt-primary", 0), "")
	_, err := gw.Generate(context.Background(), GenerateRequest{UserText: "hi"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
	if len(fake.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(fake.calls))
	}
}

func TestGenerateModelOverride(t *testing.T) {
	fake := &fakeOpenAI{answers: map[string]func(http.ResponseWriter){"gpt-4o": ok("x")}}
	gw, _ := newTestGateway(t, fake)

	gen, err := gw.Generate(context.Background(), GenerateRequest{Model: "gpt-4o", UserText: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Model != "gpt-4o" {
		t.Errorf("model = %q", gen.Model)
	}
}

func TestEchoProvider(t *testing.T) {
	gw := NewGateway(NewEchoProvider(), "")
	gen, err := gw.Generate(context.Background(), GenerateRequest{System: "s", UserText: "ทดสอบ"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Text != EchoPrefix+"ทดสอบ" {
		t.Errorf("text = %q", gen.Text)
	}
}
