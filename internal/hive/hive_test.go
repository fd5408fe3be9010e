package hive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/thammarongsak/waibon-safe-room/internal/audit"
	"github.com/thammarongsak/waibon-safe-room/internal/personas"
	"github.com/thammarongsak/waibon-safe-room/internal/providers"
	"github.com/thammarongsak/waibon-safe-room/internal/store"
	"github.com/thammarongsak/waibon-safe-room/internal/store/sqlstore"
)

// scriptedLLM returns replies in order; an entry of nil text means "fail".
type scriptedLLM struct {
	mu      sync.Mutex
	replies []*string
	reqs    []providers.GenerateRequest
	before  func(call int) // runs ahead of each call, unlocked
}

func reply(s string) *string { return &s }

func (s *scriptedLLM) Generate(ctx context.Context, req providers.GenerateRequest) (*providers.Generation, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	i := len(s.reqs) - 1
	before := s.before
	s.mu.Unlock()
	if before != nil {
		before(i)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.replies) {
		return &providers.Generation{Text: fmt.Sprintf("[OUTPUT]turn %d[/OUTPUT]", i+1), Model: "fake"}, nil
	}
	if s.replies[i] == nil {
		return nil, errors.New("upstream unavailable")
	}
	return &providers.Generation{Text: *s.replies[i], Model: "fake", Usage: providers.Usage{PromptTokens: 3, CompletionTokens: 2}}, nil
}

func (s *scriptedLLM) speakers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.reqs {
		first := FirstLine(r.System)
		first = strings.TrimPrefix(first, "คุณคือ ")
		out = append(out, strings.SplitN(first, ".", 2)[0])
	}
	return out
}

type fixture struct {
	orch  *Orchestrator
	hive  *sqlstore.HiveStore
	logs  *sqlstore.AgentLogStore
	llm   *scriptedLLM
	spans *tracetest.SpanRecorder
}

func newFixture(t *testing.T, replies ...*string) *fixture {
	t.Helper()
	db, err := sqlstore.OpenDB(sqlstore.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = sqlstore.MigrateUp(context.Background(), db, "")
	require.NoError(t, err)

	hs := sqlstore.NewHiveStore(db)
	logs := sqlstore.NewAgentLogStore(db)
	llm := &scriptedLLM{replies: replies}
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	orch := New(hs, personas.NewResolver(sqlstore.NewPersonaStore(db)), llm, audit.NewRecorder(logs),
		Options{TenantID: "tenant-1", Temperature: 0.3}).WithTracer(tp.Tracer("test"))
	return &fixture{orch: orch, hive: hs, logs: logs, llm: llm, spans: sr}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		current   string
		next      string
		terminate bool
		explicit  bool
	}{
		{"explicit", "[OUTPUT]x[/OUTPUT]\n[NEXT]ZetaAI[/NEXT]", AgentWaibonOS, AgentZetaAI, false, true},
		{"case insensitive", "[next] waibeai [/next]", AgentWaibonOS, AgentWaibeAI, false, true},
		{"alias", "[NEXT]Zeta[/NEXT]", AgentWaibeAI, AgentZetaAI, false, true},
		{"braces", "[NEXT]{WaibonOS}[/NEXT]", AgentZetaAI, AgentWaibonOS, false, true},
		{"last wins", "[NEXT]ZetaAI[/NEXT] then [NEXT]done[/NEXT]", AgentWaibonOS, "", true, true},
		{"done", "[NEXT]DONE[/NEXT]", AgentZetaAI, "", true, true},
		{"absent advances", "no marker", AgentWaibonOS, AgentWaibeAI, false, false},
		{"absent wraps", "no marker", AgentZetaAI, AgentWaibonOS, false, false},
		{"unknown advances", "[NEXT]Bob[/NEXT]", AgentWaibeAI, AgentZetaAI, false, false},
		{"template echo", "[NEXT]{WaibonOS|WaibeAI|ZetaAI|done}[/NEXT]", AgentWaibonOS, AgentWaibeAI, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ParseDecision(tt.output, tt.current)
			assert.Equal(t, tt.next, d.Next)
			assert.Equal(t, tt.terminate, d.Terminate)
			assert.Equal(t, tt.explicit, d.Explicit)
			assert.NotContains(t, d.Text, "[NEXT]")
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := &store.PersonaData{Name: AgentZetaAI, Traits: store.Traits{Role: "strategist"}}

	empty := BuildPrompt(p, nil, 8)
	assert.True(t, strings.HasPrefix(empty, "คุณคือ ZetaAI. ตอบด้วย Hive Protocol เท่านั้น"))
	assert.Contains(t, empty, "บุคลิก: role=strategist")
	assert.Contains(t, empty, "Rules:\n- สั้น กระชับ ตรงประเด็น\n- ")
	assert.True(t, strings.HasSuffix(empty, "บริบทล่าสุด:\n(ว่าง)"))

	var lines []string
	for i := 1; i <= 12; i++ {
		lines = append(lines, ContextLine(store.HiveTurnData{TurnNo: i, AgentName: AgentWaibeAI, Output: "o"}))
	}
	got := BuildPrompt(p, lines, 8)
	assert.NotContains(t, got, "[4] WaibeAI")
	assert.Contains(t, got, "[5] WaibeAI: o")
	assert.Contains(t, got, "[12] WaibeAI: o")

	p.Prompts.HiveProtocol = &store.HiveProtocol{Format: "CUSTOM", Rules: []string{"r1"}}
	got = BuildPrompt(p, nil, 8)
	assert.Contains(t, got, "Format:\nCUSTOM\n")
	assert.Contains(t, got, "Rules:\n- r1\n")
}

func TestRunCyclesAndContinues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.orch.Run(ctx, RunRequest{GroupID: "C1", Rounds: 5})
	require.NoError(t, err)
	assert.Equal(t, StopMaxTurns, res.StopReason)
	assert.Equal(t, store.HiveStatusRunning, res.Status)
	require.Len(t, res.Turns, 5)
	assert.Equal(t, []string{"WaibonOS", "WaibeAI", "ZetaAI", "WaibonOS", "WaibeAI"}, f.llm.speakers())
	for i, turn := range res.Turns {
		assert.Equal(t, i+1, turn.TurnNo)
	}

	sess, err := f.hive.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 5, sess.LastTurn)
	assert.Equal(t, DefaultTitle, sess.Title)
	assert.Equal(t, store.HiveStatusRunning, sess.Status)

	// same group reuses the session and continues numbering
	again, err := f.orch.Run(ctx, RunRequest{GroupID: "C1", Rounds: 2})
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, again.SessionID)
	require.Len(t, again.Turns, 2)
	assert.Equal(t, 6, again.Turns[0].TurnNo)
	assert.Len(t, again.Transcript, 7)

	// the prompt quotes prior turns
	last := f.llm.reqs[len(f.llm.reqs)-1]
	assert.Contains(t, last.System, "[6] WaibonOS:")
	assert.Equal(t, DefaultPrompt, last.UserText)
	require.NotNil(t, last.Temperature)
	assert.Equal(t, 0.3, *last.Temperature)

	assert.Len(t, f.spans.Ended(), 7)
}

func TestRunBoundIsClamped(t *testing.T) {
	f := newFixture(t)
	res, err := f.orch.Run(context.Background(), RunRequest{GroupID: "C2", Rounds: 50})
	require.NoError(t, err)
	assert.Len(t, res.Turns, 10)

	f = newFixture(t)
	res, err = f.orch.Run(context.Background(), RunRequest{GroupID: "C2"})
	require.NoError(t, err)
	assert.Len(t, res.Turns, 3)
}

func TestRunDoneAndExplicitNext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		reply("[OUTPUT]plan[/OUTPUT]\n[NEXT]Zeta[/NEXT]"),
		reply("[OUTPUT]ok[/OUTPUT]\n[NEXT]done[/NEXT]"),
	)

	res, err := f.orch.Run(ctx, RunRequest{GroupID: "C3", Title: "Room", Rounds: 5, Prompt: "วางแผนงาน"})
	require.NoError(t, err)
	assert.Equal(t, StopDone, res.StopReason)
	assert.Equal(t, store.HiveStatusDone, res.Status)
	assert.Equal(t, []string{"WaibonOS", "ZetaAI"}, f.llm.speakers())
	assert.Equal(t, "วางแผนงาน", f.llm.reqs[0].UserText)

	sess, err := f.hive.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, store.HiveStatusDone, sess.Status)
	assert.Equal(t, "Room", sess.Title)

	events, err := f.hive.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ALL", events[0].ToAgent)
	assert.Equal(t, AgentZetaAI, events[1].ToAgent)

	logs, err := f.logs.ListRecent(ctx, "tenant-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.True(t, l.OK)
		assert.Equal(t, AuditChannel, l.Channel)
		assert.Equal(t, "C3", l.UserUID)
	}

	// a finished session is resumed as running
	sess2, err := f.orch.EnsureSession(ctx, "C3", "")
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, sess2.ID)
	assert.Equal(t, store.HiveStatusRunning, sess2.Status)
}

func TestRunTurnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reply("[OUTPUT]first[/OUTPUT]"), nil)

	res, err := f.orch.Run(ctx, RunRequest{GroupID: "C4", Rounds: 3})
	require.NoError(t, err)
	assert.Equal(t, StopError, res.StopReason)
	assert.Contains(t, res.Error, "upstream unavailable")
	require.Len(t, res.Turns, 1)
	assert.Len(t, res.Transcript, 1)

	sess, err := f.hive.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, store.HiveStatusDone, sess.Status)
	assert.Equal(t, 1, sess.LastTurn)

	events, err := f.hive.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, TopicError, events[0].Topic)
	assert.Equal(t, AgentWaibeAI, events[0].FromAgent)

	logs, err := f.logs.ListRecent(ctx, "tenant-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	var failed int
	for _, l := range logs {
		if !l.OK {
			failed++
			assert.NotEmpty(t, l.Error)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRunCancelledRecordsOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, reply("[OUTPUT]first[/OUTPUT]"))
	f.llm.before = func(call int) {
		if call == 1 {
			cancel()
		}
	}

	res, err := f.orch.Run(ctx, RunRequest{GroupID: "C5", Rounds: 3})
	require.NoError(t, err)
	assert.Equal(t, StopError, res.StopReason)
	assert.Equal(t, store.HiveStatusDone, res.Status)
	assert.Contains(t, res.Error, context.Canceled.Error())
	assert.Len(t, res.Transcript, 1)

	bg := context.Background()
	sess, err := f.hive.GetSession(bg, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, store.HiveStatusDone, sess.Status)
	assert.Equal(t, 1, sess.LastTurn)

	events, err := f.hive.RecentEvents(bg, 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, TopicError, events[0].Topic)
	assert.Equal(t, AgentWaibeAI, events[0].FromAgent)
}

func TestRunRequiresGroup(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Run(context.Background(), RunRequest{})
	assert.Error(t, err)
}

func TestStartAndStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	st, err := f.orch.Start(ctx)
	require.NoError(t, err)
	require.Len(t, st.Agents, 3)
	assert.Equal(t, AgentWaibeAI, st.Agents[0].Name)
	assert.Len(t, st.Subs, 3)
	require.Len(t, st.Last10, 3)
	assert.Equal(t, AgentZetaAI, st.Last10[0].FromAgent)
	assert.JSONEq(t, `{"msg":"พร้อมทำงาน"}`, string(st.Last10[0].Payload))

	// Start is repeatable
	st, err = f.orch.Start(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Agents, 3)
	assert.Len(t, st.Last10, 6)
}

func TestSummary(t *testing.T) {
	res := &RunResult{Turns: []store.HiveTurnData{
		{AgentName: AgentWaibonOS, Output: "\n[ROLE]leader[/ROLE]\nmore"},
		{AgentName: AgentWaibeAI, Output: "ok"},
	}}
	want := "สรุปเวที Hive:\n• WaibonOS: [ROLE]leader[/ROLE]\n• WaibeAI: ok\n— จบรอบ —"
	assert.Equal(t, want, res.Summary())
	assert.Equal(t, "สรุปเวที Hive:\n— จบรอบ —", (&RunResult{}).Summary())
}
