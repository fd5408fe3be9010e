// Package audit writes agent_logs rows. Writes never block or fail the reply path.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// WriteTimeout bounds a single audit insert.
const WriteTimeout = 5 * time.Second

// MaxTextLen bounds input/output text stored per row, in runes.
const MaxTextLen = 4000

// Recorder inserts audit rows on a context detached from the caller.
type Recorder struct {
	store store.AgentLogStore
	wg    sync.WaitGroup
}

func NewRecorder(s store.AgentLogStore) *Recorder {
	return &Recorder{store: s}
}

// Record writes one row synchronously. Failures are logged and dropped.
func (r *Recorder) Record(ctx context.Context, entry store.AgentLogData) {
	if r == nil || r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), WriteTimeout)
	defer cancel()

	entry.InputText = clip(entry.InputText)
	entry.OutputText = clip(entry.OutputText)
	if err := r.store.Insert(ctx, &entry); err != nil {
		slog.Warn("audit: insert failed", "agent", entry.AgentName, "owner", entry.OwnerID, "error", err)
	}
}

// Go records in the background. Wait blocks until every pending write ends.
func (r *Recorder) Go(ctx context.Context, entry store.AgentLogData) {
	if r == nil || r.store == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Record(ctx, entry)
	}()
}

// Wait blocks until background writes started with Go have finished.
func (r *Recorder) Wait() {
	if r != nil {
		r.wg.Wait()
	}
}

func clip(s string) string {
	rs := []rune(s)
	if len(rs) <= MaxTextLen {
		return s
	}
	return string(rs[:MaxTextLen])
}
