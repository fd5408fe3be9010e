package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
	"github.com/thammarongsak/waibon-safe-room/internal/store/sqlstore"
)

func newSQLiteMemory(t *testing.T, window int) *Memory {
	t.Helper()
	db, err := sqlstore.OpenDB(sqlstore.DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := sqlstore.MigrateUp(context.Background(), db, ""); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	return New(sqlstore.NewMemoryStore(db), window)
}

func TestRecentOldestFirstWithinWindow(t *testing.T) {
	ctx := context.Background()
	m := newSQLiteMemory(t, 12)

	for i := 1; i <= 15; i++ {
		m.Append(ctx, "owner", "subj", RoleUser, fmt.Sprintf("q%d", i))
	}
	m.Append(ctx, "owner", "other", RoleUser, "elsewhere")
	m.Append(ctx, "owner", "subj", RoleUser, "")

	turns := m.Recent(ctx, "owner", "subj", 0)
	if len(turns) != 12 {
		t.Fatalf("len = %d, want 12", len(turns))
	}
	if turns[0].Text != "q4" || turns[11].Text != "q15" {
		t.Errorf("order = %q .. %q, want q4 .. q15", turns[0].Text, turns[11].Text)
	}

	if got := m.Recent(ctx, "owner", "subj", 2); len(got) != 2 || got[1].Text != "q15" {
		t.Errorf("Recent(2) = %+v", got)
	}
	if got := m.Recent(ctx, "other-owner", "subj", 5); len(got) != 0 {
		t.Errorf("other owner sees %d turns", len(got))
	}
}

func TestEncodeDecode(t *testing.T) {
	s, err := Encode(Turn{Role: RoleAssistant, Text: "รับทราบครับพ่อ"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(s)
	if err != nil {
		t.Fatal(err)
	}
	if got.Role != RoleAssistant || got.Text != "รับทราบครับพ่อ" {
		t.Errorf("got %+v", got)
	}
	if _, err := Decode("%%%"); err == nil {
		t.Error("Decode should reject invalid base64")
	}
}

type brokenStore struct {
	recs      []store.MemoryRecord
	appendErr error
	recentErr error
}

func (b *brokenStore) Append(context.Context, *store.MemoryRecord) error { return b.appendErr }

func (b *brokenStore) Recent(context.Context, string, string, string, int) ([]store.MemoryRecord, error) {
	return b.recs, b.recentErr
}

func TestFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("db down")

	m := New(&brokenStore{appendErr: boom, recentErr: boom}, 0)
	m.Append(ctx, "o", "s", RoleUser, "hi")
	if got := m.Recent(ctx, "o", "s", 5); got != nil {
		t.Errorf("Recent on failure = %+v, want nil", got)
	}

	good, _ := Encode(Turn{Role: RoleUser, Text: "ok"})
	m = New(&brokenStore{recs: []store.MemoryRecord{{Idx: 2, DataB64: "!!bad"}, {Idx: 1, DataB64: good}}}, 0)
	got := m.Recent(ctx, "o", "s", 5)
	if len(got) != 1 || got[0].Text != "ok" {
		t.Errorf("Recent with a bad row = %+v", got)
	}
	if m.Window() != DefaultWindow {
		t.Errorf("Window = %d", m.Window())
	}
}

func TestLastAnswer(t *testing.T) {
	turns := []Turn{{RoleUser, "a"}, {RoleAssistant, "b"}, {RoleUser, "c"}}
	if got := LastAnswer(turns); got != "b" {
		t.Errorf("LastAnswer = %q", got)
	}
	if LastAnswer(nil) != "" {
		t.Error("LastAnswer(nil) should be empty")
	}
}
