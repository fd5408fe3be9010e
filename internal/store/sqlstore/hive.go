package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// HiveStore implements store.HiveStore.
type HiveStore struct {
	db *DB
}

func NewHiveStore(db *DB) *HiveStore {
	return &HiveStore{db: db}
}

const hiveSessionSelectCols = `id, group_id, title, status, last_turn, created_at, updated_at`

func scanHiveSession(row rowScanner) (*store.HiveSessionData, error) {
	var d store.HiveSessionData
	err := row.Scan(&d.ID, &d.GroupID, &d.Title, &d.Status, &d.LastTurn, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *HiveStore) LatestSessionByGroup(ctx context.Context, groupID string) (*store.HiveSessionData, error) {
	return scanHiveSession(s.db.QueryRowContext(ctx,
		`SELECT `+hiveSessionSelectCols+` FROM hive_sessions
		 WHERE group_id = $1 ORDER BY created_at DESC LIMIT 1`, groupID))
}

func (s *HiveStore) GetSession(ctx context.Context, id uuid.UUID) (*store.HiveSessionData, error) {
	return scanHiveSession(s.db.QueryRowContext(ctx,
		`SELECT `+hiveSessionSelectCols+` FROM hive_sessions WHERE id = $1`, id.String()))
}

func (s *HiveStore) CreateSession(ctx context.Context, sess *store.HiveSessionData) error {
	if sess.ID == uuid.Nil {
		sess.ID = store.GenNewID()
	}
	if sess.Status == "" {
		sess.Status = store.HiveStatusRunning
	}
	now := nowUTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hive_sessions (`+hiveSessionSelectCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID.String(), sess.GroupID, sess.Title, sess.Status, sess.LastTurn, now, now,
	)
	return err
}

func (s *HiveStore) SetSessionStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hive_sessions SET status = $1, updated_at = $2 WHERE id = $3`,
		status, nowUTC(), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *HiveStore) AppendTurn(ctx context.Context, turn *store.HiveTurnData) error {
	if turn.ID == uuid.Nil {
		turn.ID = store.GenNewID()
	}
	turn.CreatedAt = nowUTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO hive_turns (id, session_id, turn_no, agent_name, output, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID.String(), turn.SessionID.String(), turn.TurnNo, turn.AgentName, turn.Output, turn.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert hive turn %d: %w", turn.TurnNo, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE hive_sessions SET last_turn = $1, updated_at = $2 WHERE id = $3`,
		turn.TurnNo, turn.CreatedAt, turn.SessionID.String(),
	); err != nil {
		return fmt.Errorf("advance hive session: %w", err)
	}
	return tx.Commit()
}

func (s *HiveStore) ListTurns(ctx context.Context, sessionID uuid.UUID) ([]store.HiveTurnData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, turn_no, agent_name, output, created_at FROM hive_turns
		 WHERE session_id = $1 ORDER BY turn_no`, sessionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.HiveTurnData
	for rows.Next() {
		var t store.HiveTurnData
		if err := rows.Scan(&t.ID, &t.SessionID, &t.TurnNo, &t.AgentName, &t.Output, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func jsonText(raw json.RawMessage) string {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "{}"
	}
	return string(raw)
}

func (s *HiveStore) AppendEvents(ctx context.Context, events []store.HiveEventData) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range events {
		ev := &events[i]
		if ev.TS.IsZero() {
			ev.TS = nowUTC()
		}
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO hive_events (topic, from_agent, to_agent, payload, ts)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			ev.Topic, ev.FromAgent, ev.ToAgent, jsonText(ev.Payload), ev.TS.UTC(),
		).Scan(&ev.ID); err != nil {
			return fmt.Errorf("insert hive event: %w", err)
		}
	}
	return tx.Commit()
}

func (s *HiveStore) RecentEvents(ctx context.Context, limit int) ([]store.HiveEventData, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, from_agent, to_agent, payload, ts FROM hive_events
		 ORDER BY ts DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.HiveEventData
	for rows.Next() {
		var ev store.HiveEventData
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.FromAgent, &ev.ToAgent, &payload, &ev.TS); err != nil {
			return nil, err
		}
		ev.Payload = json.RawMessage(payload)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *HiveStore) UpsertAgents(ctx context.Context, agents []store.HiveAgentData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := nowUTC()
	for i := range agents {
		a := &agents[i]
		a.UpdatedAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO hive_agents (name, capabilities, persona, updated_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (name) DO UPDATE SET
			   capabilities = EXCLUDED.capabilities, persona = EXCLUDED.persona,
			   updated_at = EXCLUDED.updated_at`,
			a.Name, jsonText(a.Capabilities), jsonText(a.Persona), now,
		); err != nil {
			return fmt.Errorf("upsert hive agent %s: %w", a.Name, err)
		}
	}
	return tx.Commit()
}

func (s *HiveStore) ListAgents(ctx context.Context) ([]store.HiveAgentData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, capabilities, persona, updated_at FROM hive_agents ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.HiveAgentData
	for rows.Next() {
		var a store.HiveAgentData
		var caps, persona []byte
		if err := rows.Scan(&a.Name, &caps, &persona, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Capabilities = json.RawMessage(caps)
		a.Persona = json.RawMessage(persona)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *HiveStore) UpsertSubscriptions(ctx context.Context, subs []store.HiveSubscriptionData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, sub := range subs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO hive_subscriptions (agent_name, topic) VALUES ($1, $2)
			 ON CONFLICT (agent_name, topic) DO NOTHING`,
			sub.AgentName, sub.Topic,
		); err != nil {
			return fmt.Errorf("upsert hive subscription %s/%s: %w", sub.AgentName, sub.Topic, err)
		}
	}
	return tx.Commit()
}

func (s *HiveStore) ListSubscriptions(ctx context.Context) ([]store.HiveSubscriptionData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_name, topic FROM hive_subscriptions ORDER BY agent_name, topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.HiveSubscriptionData
	for rows.Next() {
		var sub store.HiveSubscriptionData
		if err := rows.Scan(&sub.AgentName, &sub.Topic); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
