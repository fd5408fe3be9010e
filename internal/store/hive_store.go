package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Hive session statuses.
const (
	HiveStatusRunning = "running"
	HiveStatusDone    = "done"
)

// HiveSessionData is a hive_sessions row.
type HiveSessionData struct {
	ID        uuid.UUID `json:"id"`
	GroupID   string    `json:"group_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	LastTurn  int       `json:"last_turn"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HiveTurnData is a hive_turns row.
type HiveTurnData struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	TurnNo    int       `json:"turn_no"`
	AgentName string    `json:"agent_name"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}

// HiveEventData is a hive_events row.
type HiveEventData struct {
	ID        int64           `json:"id"`
	Topic     string          `json:"topic"`
	FromAgent string          `json:"from_agent"`
	ToAgent   string          `json:"to_agent,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	TS        time.Time       `json:"ts"`
}

// HiveAgentData is a hive_agents row.
type HiveAgentData struct {
	Name         string          `json:"name"`
	Capabilities json.RawMessage `json:"capabilities"`
	Persona      json.RawMessage `json:"persona"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HiveSubscriptionData is a hive_subscriptions row.
type HiveSubscriptionData struct {
	AgentName string `json:"agent_name"`
	Topic     string `json:"topic"`
}

// HiveStore persists hive sessions, turns, events and the agent roster.
type HiveStore interface {
	// LatestSessionByGroup returns nil, nil when the group has no session.
	LatestSessionByGroup(ctx context.Context, groupID string) (*HiveSessionData, error)
	CreateSession(ctx context.Context, sess *HiveSessionData) error
	GetSession(ctx context.Context, id uuid.UUID) (*HiveSessionData, error)
	SetSessionStatus(ctx context.Context, id uuid.UUID, status string) error

	// AppendTurn inserts the turn and advances the session's last_turn in one transaction.
	AppendTurn(ctx context.Context, turn *HiveTurnData) error
	ListTurns(ctx context.Context, sessionID uuid.UUID) ([]HiveTurnData, error)

	AppendEvents(ctx context.Context, events []HiveEventData) error
	RecentEvents(ctx context.Context, limit int) ([]HiveEventData, error)

	UpsertAgents(ctx context.Context, agents []HiveAgentData) error
	ListAgents(ctx context.Context) ([]HiveAgentData, error)
	UpsertSubscriptions(ctx context.Context, subs []HiveSubscriptionData) error
	ListSubscriptions(ctx context.Context) ([]HiveSubscriptionData, error)
}
