// Package memory keeps per-subject dialog turns in the append-only memory chain.
// Every failure here is logged and swallowed: a reply must never fail because
// history could not be read or written.
package memory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// DefaultWindow is how many turns Recent returns when no limit is given.
const DefaultWindow = 12

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one decoded dialog entry.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Memory wraps a MemoryStore with the dialog payload encoding.
type Memory struct {
	store  store.MemoryStore
	window int
}

func New(ms store.MemoryStore, window int) *Memory {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{store: ms, window: window}
}

// Window is the configured default limit.
func (m *Memory) Window() int { return m.window }

// Append stores one turn. Empty text is ignored.
func (m *Memory) Append(ctx context.Context, ownerID, subject, role, text string) {
	if text == "" {
		return
	}
	payload, err := Encode(Turn{Role: role, Text: text})
	if err != nil {
		slog.Warn("memory: encode failed", "subject", subject, "error", err)
		return
	}
	rec := &store.MemoryRecord{
		OwnerID: ownerID,
		Subject: subject,
		Kind:    store.MemoryKindDialog,
		DataB64: payload,
	}
	if err := m.store.Append(ctx, rec); err != nil {
		slog.Warn("memory: append failed", "owner", ownerID, "subject", subject, "error", err)
	}
}

// Recent returns up to limit turns, oldest first. limit <= 0 uses the window.
func (m *Memory) Recent(ctx context.Context, ownerID, subject string, limit int) []Turn {
	if limit <= 0 {
		limit = m.window
	}
	recs, err := m.store.Recent(ctx, ownerID, subject, store.MemoryKindDialog, limit)
	if err != nil {
		slog.Warn("memory: read failed", "owner", ownerID, "subject", subject, "error", err)
		return nil
	}

	turns := make([]Turn, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		t, err := Decode(recs[i].DataB64)
		if err != nil {
			slog.Warn("memory: skip undecodable turn", "idx", recs[i].Idx, "error", err)
			continue
		}
		turns = append(turns, t)
	}
	return turns
}

// LastAnswer returns the newest assistant text in turns, or "".
func LastAnswer(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleAssistant {
			return turns[i].Text
		}
	}
	return ""
}

// Encode serializes a turn into the data_b64 column format.
func Encode(t Turn) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses a data_b64 column value.
func Decode(s string) (Turn, error) {
	var t Turn
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return t, err
	}
	err = json.Unmarshal(data, &t)
	return t, err
}
