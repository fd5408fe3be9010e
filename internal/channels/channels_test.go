package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

func TestChunkText(t *testing.T) {
	thai := strings.Repeat("สวัสดี", 400) // 2400 runes
	withNewline := strings.Repeat("a", 600) + "\n" + strings.Repeat("b", 600)
	lines := strings.Repeat(strings.Repeat("ก", 499)+"\n", 5) + strings.Repeat("ข", 100) // 2600 runes
	tail := strings.Repeat("a", 500) + "\n" + strings.Repeat("b", 1000)

	tests := []struct {
		name      string
		text      string
		size      int
		wantCount int
		firstLen  int
	}{
		{"empty", "", 900, 0, 0},
		{"short", "hello", 900, 1, 5},
		{"exact", strings.Repeat("x", 900), 900, 1, 900},
		{"thai runes", thai, 900, 3, 900},
		{"prefers newline", withNewline, 900, 2, 601},
		{"newline too early", "a\n" + strings.Repeat("c", 1000), 900, 2, 900},
		{"2600 runes with lines", lines, 900, 3, 900},
		{"newline would add a piece", tail, 900, 2, 900},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkText(tt.text, tt.size)
			if len(chunks) != tt.wantCount {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.wantCount)
			}
			if strings.Join(chunks, "") != tt.text {
				t.Error("chunks do not concatenate back to input")
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c); n > tt.size {
					t.Errorf("chunk %d has %d runes, limit %d", i, n, tt.size)
				}
				if !utf8.ValidString(c) {
					t.Errorf("chunk %d is not valid UTF-8", i)
				}
			}
			if tt.wantCount > 0 && utf8.RuneCountInString(chunks[0]) != tt.firstLen {
				t.Errorf("first chunk = %d runes, want %d", utf8.RuneCountInString(chunks[0]), tt.firstLen)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("สวัสดีครับ", 3); got != "สวั" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := Preview("  abcdef ", 3); got != "abc..." {
		t.Errorf("Preview = %q", got)
	}
}

type fakeChannelStore struct {
	rows map[string]*store.ChannelData
	err  error
}

func (f *fakeChannelStore) GetByDestination(_ context.Context, d string) (*store.ChannelData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[d], nil
}
func (f *fakeChannelStore) Upsert(context.Context, *store.ChannelData) error { return nil }
func (f *fakeChannelStore) SetEnabled(context.Context, string, bool) error { return nil }
func (f *fakeChannelStore) List(context.Context) ([]store.ChannelData, error) { return nil, nil }

func TestRegistryResolve(t *testing.T) {
	cs := &fakeChannelStore{rows: map[string]*store.ChannelData{
		"Uon":  {Destination: "Uon", OwnerID: "o", Enabled: true},
		"Uoff": {Destination: "Uoff", OwnerID: "o", Enabled: false},
	}}
	ctx := context.Background()

	r := NewRegistry(cs, nil)
	ch, err := r.Resolve(ctx, "Uon")
	if err != nil || ch.OwnerID != "o" {
		t.Fatalf("Resolve(Uon) = %+v, %v", ch, err)
	}

	_, err = r.Resolve(ctx, "Uoff")
	if !errors.Is(err, ErrChannelNotFound) || !errors.Is(err, ErrChannelDisabled) {
		t.Errorf("disabled channel err = %v", err)
	}

	_, err = r.Resolve(ctx, "Umissing")
	if !errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrChannelDisabled) {
		t.Errorf("missing channel err = %v", err)
	}

	withEnv := NewRegistry(cs, &store.ChannelData{OwnerID: "env-owner", Enabled: true})
	ch, err = withEnv.Resolve(ctx, "Umissing")
	if err != nil || ch.OwnerID != "env-owner" || ch.Destination != "Umissing" {
		t.Errorf("fallback = %+v, %v", ch, err)
	}
	if _, err := withEnv.Resolve(ctx, "Uoff"); !errors.Is(err, ErrChannelDisabled) {
		t.Error("a disabled row must not fall back to env channel")
	}

	failing := NewRegistry(&fakeChannelStore{err: fmt.Errorf("db down")}, nil)
	if _, err := failing.Resolve(ctx, "Uon"); err == nil || errors.Is(err, ErrChannelNotFound) {
		t.Errorf("store error should surface, got %v", err)
	}
}

func TestSenderRateLimiter(t *testing.T) {
	rl := NewSenderRateLimiter(60, 2)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("U1") || !rl.Allow("U1") {
		t.Fatal("burst of 2 should pass")
	}
	if rl.Allow("U1") {
		t.Error("third immediate request should be limited")
	}
	if !rl.Allow("U2") {
		t.Error("other sender must not be affected")
	}

	now = now.Add(time.Second)
	if !rl.Allow("U1") {
		t.Error("one token should refill after a second at 60 rpm")
	}

	disabled := NewSenderRateLimiter(0, 0)
	if !disabled.Allow("anyone") {
		t.Error("disabled limiter should allow")
	}
}

func TestSenderRateLimiterBounded(t *testing.T) {
	rl := NewSenderRateLimiter(60, 1)
	for i := 0; i < maxTrackedKeys+100; i++ {
		rl.Allow(fmt.Sprintf("U%d", i))
	}
	if rl.Len() > maxTrackedKeys {
		t.Errorf("tracked %d keys, cap %d", rl.Len(), maxTrackedKeys)
	}
}
