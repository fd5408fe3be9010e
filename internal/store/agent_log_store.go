package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AgentLogData is one audit row per generated reply or hive turn.
type AgentLogData struct {
	ID               uuid.UUID  `json:"id"`
	OwnerID          string     `json:"owner_id"`
	AgentID          *uuid.UUID `json:"agent_id,omitempty"`
	AgentName        string     `json:"agent_name"`
	Channel          string     `json:"channel"`
	UserUID          string     `json:"user_uid,omitempty"`
	InputText        string     `json:"input_text"`
	OutputText       string     `json:"output_text"`
	Model            string     `json:"model,omitempty"`
	TokensPrompt     int        `json:"tokens_prompt"`
	TokensCompletion int        `json:"tokens_completion"`
	LatencyMS        int64      `json:"latency_ms"`
	OK               bool       `json:"ok"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// AgentLogStore manages agent_logs rows.
type AgentLogStore interface {
	Insert(ctx context.Context, log *AgentLogData) error
	ListRecent(ctx context.Context, ownerID string, limit int) ([]AgentLogData, error)
}
