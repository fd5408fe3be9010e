package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

type fakeLogStore struct {
	mu      sync.Mutex
	rows    []store.AgentLogData
	err     error
	ctxErrs []error
	hasDL   []bool
}

func (f *fakeLogStore) Insert(ctx context.Context, l *store.AgentLogData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := ctx.Deadline()
	f.hasDL = append(f.hasDL, ok)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *l)
	return nil
}

func (f *fakeLogStore) ListRecent(context.Context, string, int) ([]store.AgentLogData, error) {
	return f.rows, nil
}

func TestRecordDetachedFromCanceledRequest(t *testing.T) {
	fs := &fakeLogStore{}
	r := NewRecorder(fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, store.AgentLogData{AgentName: "Waibe", OK: false, Error: "gateway: boom"})

	if len(fs.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(fs.rows))
	}
	if fs.ctxErrs[0] != nil {
		t.Errorf("insert ctx err = %v, want detached context", fs.ctxErrs[0])
	}
	if !fs.hasDL[0] {
		t.Error("insert ctx should carry a deadline")
	}
	if fs.rows[0].OK || fs.rows[0].Error == "" {
		t.Errorf("row = %+v", fs.rows[0])
	}
}

func TestRecordSwallowsErrors(t *testing.T) {
	r := NewRecorder(&fakeLogStore{err: errors.New("disk full")})
	r.Record(context.Background(), store.AgentLogData{AgentName: "Zeta"})

	var nilRecorder *Recorder
	nilRecorder.Record(context.Background(), store.AgentLogData{})
	nilRecorder.Go(context.Background(), store.AgentLogData{})
	nilRecorder.Wait()
}

func TestGoAndWait(t *testing.T) {
	fs := &fakeLogStore{}
	r := NewRecorder(fs)
	for i := 0; i < 5; i++ {
		r.Go(context.Background(), store.AgentLogData{AgentName: "Waibon", LatencyMS: int64(i)})
	}

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}
	if len(fs.rows) != 5 {
		t.Errorf("rows = %d, want 5", len(fs.rows))
	}
}

func TestRecordClipsText(t *testing.T) {
	fs := &fakeLogStore{}
	r := NewRecorder(fs)
	r.Record(context.Background(), store.AgentLogData{InputText: strings.Repeat("ก", MaxTextLen+10)})
	if n := len([]rune(fs.rows[0].InputText)); n != MaxTextLen {
		t.Errorf("input runes = %d, want %d", n, MaxTextLen)
	}
}
