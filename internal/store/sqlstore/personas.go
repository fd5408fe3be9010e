package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// PersonaStore implements store.PersonaStore.
type PersonaStore struct {
	db *DB
}

func NewPersonaStore(db *DB) *PersonaStore {
	return &PersonaStore{db: db}
}

const personaJoinSelect = `SELECT a.id, a.owner_id, a.name, a.model_ref, a.training_profile_id,
	 a.effective_capabilities, a.persona, a.created_at, a.updated_at,
	 COALESCE(t.version, ''), COALESCE(t.prompts, '{}')
	 FROM ai_agents a
	 LEFT JOIN training_profiles t ON t.id = a.training_profile_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPersona(row rowScanner) (*store.PersonaData, error) {
	var d store.PersonaData
	var tpID sql.NullString
	var caps, traits, prompts []byte
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Name, &d.ModelRef, &tpID,
		&caps, &traits, &d.CreatedAt, &d.UpdatedAt,
		&d.TrainingVersion, &prompts); err != nil {
		return nil, err
	}
	if tpID.Valid && tpID.String != "" {
		if id, err := uuid.Parse(tpID.String); err == nil {
			d.TrainingProfileID = &id
		}
	}
	decodeJSONColumn(caps, &d.Capabilities, "effective_capabilities", d.Name)
	decodeJSONColumn(traits, &d.Traits, "persona", d.Name)
	decodeJSONColumn(prompts, &d.Prompts, "prompts", d.Name)
	return &d, nil
}

// decodeJSONColumn leaves dst at its zero value when the column is not valid JSON.
func decodeJSONColumn(data []byte, dst any, column, name string) {
	if len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, dst); err != nil {
		slog.Warn("persona: bad json column", "column", column, "agent", name, "error", err)
	}
}

func (s *PersonaStore) GetByName(ctx context.Context, ownerID, name string) (*store.PersonaData, error) {
	row := s.db.QueryRowContext(ctx,
		personaJoinSelect+` WHERE a.owner_id = $1 AND a.name = $2`, ownerID, name)
	d, err := scanPersona(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (s *PersonaStore) List(ctx context.Context, ownerID string) ([]store.PersonaData, error) {
	rows, err := s.db.QueryContext(ctx,
		personaJoinSelect+` WHERE a.owner_id = $1 ORDER BY a.name`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.PersonaData
	for rows.Next() {
		d, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Upsert inserts or updates a persona keyed by (owner_id, name). The stored id
// is written back into p.
func (s *PersonaStore) Upsert(ctx context.Context, p *store.PersonaData) error {
	if p.ID == uuid.Nil {
		p.ID = store.GenNewID()
	}
	now := nowUTC()
	p.UpdatedAt = now
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	var tpID any
	if p.TrainingProfileID != nil {
		tpID = p.TrainingProfileID.String()
	}
	return s.db.QueryRowContext(ctx,
		`INSERT INTO ai_agents (id, owner_id, name, model_ref, training_profile_id, effective_capabilities, persona, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (owner_id, name) DO UPDATE SET
		   model_ref = EXCLUDED.model_ref, training_profile_id = EXCLUDED.training_profile_id,
		   effective_capabilities = EXCLUDED.effective_capabilities, persona = EXCLUDED.persona,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		p.ID.String(), p.OwnerID, p.Name, p.ModelRef, tpID,
		store.EncodeJSON(p.Capabilities), store.EncodeJSON(p.Traits), p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
}

func (s *PersonaStore) UpsertTrainingProfile(ctx context.Context, tp *store.TrainingProfileData) error {
	if tp.ID == uuid.Nil {
		tp.ID = store.GenNewID()
	}
	if tp.CreatedAt.IsZero() {
		tp.CreatedAt = nowUTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_profiles (id, version, prompts, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, prompts = EXCLUDED.prompts`,
		tp.ID.String(), tp.Version, store.EncodeJSON(tp.Prompts), tp.CreatedAt,
	)
	return err
}

func (s *PersonaStore) GetModel(ctx context.Context, id uuid.UUID) (*store.ModelData, error) {
	var m store.ModelData
	err := s.db.QueryRowContext(ctx,
		`SELECT id, provider, model_key FROM ai_models WHERE id = $1`, id.String(),
	).Scan(&m.ID, &m.Provider, &m.ModelKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PersonaStore) UpsertModel(ctx context.Context, m *store.ModelData) error {
	if m.ID == uuid.Nil {
		m.ID = store.GenNewID()
	}
	if m.Provider == "" {
		m.Provider = "openai"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_models (id, provider, model_key) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET provider = EXCLUDED.provider, model_key = EXCLUDED.model_key`,
		m.ID.String(), m.Provider, m.ModelKey,
	)
	return err
}
