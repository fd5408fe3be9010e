package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HiveProtocol overrides the turn format and rules a persona follows in a hive round.
type HiveProtocol struct {
	Format string   `json:"format,omitempty" yaml:"format,omitempty"`
	Rules  []string `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// Prompts is the prompt bundle of a training profile.
type Prompts struct {
	SystemTH     string        `json:"system_th,omitempty" yaml:"system_th,omitempty"`
	SystemEN     string        `json:"system,omitempty" yaml:"system,omitempty"`
	HiveProtocol *HiveProtocol `json:"hive_protocol,omitempty" yaml:"hive_protocol,omitempty"`
}

// System returns the Thai system prompt, falling back to the generic one.
func (p Prompts) System() string {
	if s := strings.TrimSpace(p.SystemTH); s != "" {
		return s
	}
	return strings.TrimSpace(p.SystemEN)
}

// Traits describe how a persona speaks.
type Traits struct {
	Role    string `json:"role,omitempty" yaml:"role,omitempty"`
	Style   string `json:"style,omitempty" yaml:"style,omitempty"`
	Tone    string `json:"tone,omitempty" yaml:"tone,omitempty"`
	Pronoun string `json:"pronoun,omitempty" yaml:"pronoun,omitempty"`
	Emoji   string `json:"emoji,omitempty" yaml:"emoji,omitempty"`
}

// Capabilities is the effective capability set of a persona.
type Capabilities struct {
	Tools  []string        `json:"tools,omitempty" yaml:"tools,omitempty"`
	Models []string        `json:"models,omitempty" yaml:"models,omitempty"`
	Flags  map[string]bool `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// PersonaData is an ai_agents row joined with its training profile.
// Model holds the resolved model key; ModelRef is the raw column value.
type PersonaData struct {
	ID                uuid.UUID    `json:"id"`
	OwnerID           string       `json:"owner_id"`
	Name              string       `json:"name"`
	ModelRef          string       `json:"model_ref,omitempty"`
	Model             string       `json:"model,omitempty"`
	TrainingProfileID *uuid.UUID   `json:"training_profile_id,omitempty"`
	TrainingVersion   string       `json:"training_version"`
	Prompts           Prompts      `json:"prompts"`
	Capabilities      Capabilities `json:"capabilities"`
	Traits            Traits       `json:"traits"`
	Builtin           bool         `json:"builtin,omitempty"` // embedded default, not a DB row
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// DefaultTrainingVersion is reported when a persona has no training profile.
const DefaultTrainingVersion = "unknown"

// ApplyDefaults fills optional fields in one place.
func (p *PersonaData) ApplyDefaults() {
	if p.TrainingVersion == "" {
		p.TrainingVersion = DefaultTrainingVersion
	}
	if p.Traits.Pronoun == "" {
		p.Traits.Pronoun = "ครับ"
	}
	if p.Model == "" && p.ModelRef != "" {
		if _, err := uuid.Parse(p.ModelRef); err != nil {
			p.Model = p.ModelRef
		}
	}
}

// TrainingProfileData is a training_profiles row.
type TrainingProfileData struct {
	ID        uuid.UUID `json:"id"`
	Version   string    `json:"version"`
	Prompts   Prompts   `json:"prompts"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelData is an ai_models row.
type ModelData struct {
	ID       uuid.UUID `json:"id"`
	Provider string    `json:"provider"`
	ModelKey string    `json:"model_key"`
}

// PersonaStore manages personas, their training profiles and the model catalog.
type PersonaStore interface {
	// GetByName returns nil, nil when the tenant has no persona with that name.
	GetByName(ctx context.Context, ownerID, name string) (*PersonaData, error)
	List(ctx context.Context, ownerID string) ([]PersonaData, error)
	Upsert(ctx context.Context, p *PersonaData) error
	UpsertTrainingProfile(ctx context.Context, tp *TrainingProfileData) error
	// GetModel returns nil, nil for an unknown id.
	GetModel(ctx context.Context, id uuid.UUID) (*ModelData, error)
	UpsertModel(ctx context.Context, m *ModelData) error
}

// EncodeJSON serializes a JSON column value; nil and errors become "{}".
func EncodeJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return "{}"
	}
	return string(data)
}
