package sqlstore

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// AgentLogStore implements store.AgentLogStore.
type AgentLogStore struct {
	db *DB
}

func NewAgentLogStore(db *DB) *AgentLogStore {
	return &AgentLogStore{db: db}
}

const agentLogSelectCols = `id, owner_id, agent_id, agent_name, channel, user_uid, input_text, output_text,
	model, tokens_prompt, tokens_completion, latency_ms, ok, error, created_at`

func (s *AgentLogStore) Insert(ctx context.Context, l *store.AgentLogData) error {
	if l.ID == uuid.Nil {
		l.ID = store.GenNewID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = nowUTC()
	}
	if l.Channel == "" {
		l.Channel = "line"
	}
	var agentID any
	if l.AgentID != nil {
		agentID = l.AgentID.String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_logs (`+agentLogSelectCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.ID.String(), l.OwnerID, agentID, l.AgentName, l.Channel, l.UserUID,
		l.InputText, l.OutputText, l.Model, l.TokensPrompt, l.TokensCompletion,
		l.LatencyMS, l.OK, l.Error, l.CreatedAt.UTC(),
	)
	return err
}

func (s *AgentLogStore) ListRecent(ctx context.Context, ownerID string, limit int) ([]store.AgentLogData, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentLogSelectCols+` FROM agent_logs
		 WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AgentLogData
	for rows.Next() {
		var l store.AgentLogData
		var agentID sql.NullString
		if err := rows.Scan(&l.ID, &l.OwnerID, &agentID, &l.AgentName, &l.Channel, &l.UserUID,
			&l.InputText, &l.OutputText, &l.Model, &l.TokensPrompt, &l.TokensCompletion,
			&l.LatencyMS, &l.OK, &l.Error, &l.CreatedAt); err != nil {
			return nil, err
		}
		if agentID.Valid && agentID.String != "" {
			if id, err := uuid.Parse(agentID.String); err == nil {
				l.AgentID = &id
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
