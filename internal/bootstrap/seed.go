package bootstrap

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

//go:embed templates/personas.yaml
var templateFS embed.FS

// PersonasFile is the embedded persona seed file.
const PersonasFile = "templates/personas.yaml"

// PersonaSeed is one built-in persona definition.
type PersonaSeed struct {
	Name     string          `yaml:"name"`
	Aliases  []string        `yaml:"aliases,omitempty"`
	RoleLine string          `yaml:"role_line,omitempty"`
	Model    string          `yaml:"model,omitempty"`
	Traits   store.Traits    `yaml:"traits"`
	Flags    map[string]bool `yaml:"flags,omitempty"`
	Prompts  store.Prompts   `yaml:"prompts,omitempty"`
}

// Seeds is the parsed persona seed file.
type Seeds struct {
	HiveProtocol store.HiveProtocol `yaml:"hive_protocol"`
	Direct       []PersonaSeed      `yaml:"direct"`
	Hive         []PersonaSeed      `yaml:"hive"`
}

var (
	defaultsOnce sync.Once
	defaults     *Seeds
	defaultsErr  error
)

// ParseSeeds decodes a persona seed document.
func ParseSeeds(data []byte) (*Seeds, error) {
	var s Seeds
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse persona seeds: %w", err)
	}
	for _, list := range [][]PersonaSeed{s.Direct, s.Hive} {
		for i, p := range list {
			if strings.TrimSpace(p.Name) == "" {
				return nil, fmt.Errorf("parse persona seeds: entry %d has no name", i)
			}
		}
	}
	return &s, nil
}

// Defaults returns the embedded seeds. The file is parsed once.
func Defaults() *Seeds {
	defaultsOnce.Do(func() {
		data, err := templateFS.ReadFile(PersonasFile)
		if err != nil {
			defaultsErr = err
			return
		}
		defaults, defaultsErr = ParseSeeds(data)
	})
	if defaultsErr != nil {
		// embedded file is part of the build; failing here is a build defect
		panic(defaultsErr)
	}
	return defaults
}

func find(list []PersonaSeed, name string) (PersonaSeed, bool) {
	for _, p := range list {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
		for _, a := range p.Aliases {
			if strings.EqualFold(a, name) {
				return p, true
			}
		}
	}
	return PersonaSeed{}, false
}

// DirectPersona finds a direct persona by name.
func (s *Seeds) DirectPersona(name string) (PersonaSeed, bool) { return find(s.Direct, name) }

// HivePersona finds a hive persona by name or alias.
func (s *Seeds) HivePersona(name string) (PersonaSeed, bool) { return find(s.Hive, name) }

// RoleLine returns the role line for a direct persona, defaulting to Waibe's.
func (s *Seeds) RoleLine(name string) string {
	if p, ok := s.DirectPersona(name); ok && p.RoleLine != "" {
		return p.RoleLine
	}
	if p, ok := s.DirectPersona("Waibe"); ok {
		return p.RoleLine
	}
	return ""
}

// Persona converts a seed into an unsaved persona for the tenant.
func (p PersonaSeed) Persona(ownerID string) *store.PersonaData {
	d := &store.PersonaData{
		OwnerID:  ownerID,
		Name:     p.Name,
		ModelRef: p.Model,
		Prompts:  p.Prompts,
		Traits:   p.Traits,
		Builtin:  true,
	}
	if len(p.Flags) > 0 {
		d.Capabilities.Flags = make(map[string]bool, len(p.Flags))
		for k, v := range p.Flags {
			d.Capabilities.Flags[k] = v
		}
	}
	d.ApplyDefaults()
	return d
}

// SeedVersion is the training profile version written by SeedPersonas.
const SeedVersion = "seed-1"

// SeedPersonas writes every built-in persona that the tenant does not have yet,
// each with its own training profile. Existing personas are left untouched.
// Returns the names that were created.
func SeedPersonas(ctx context.Context, ps store.PersonaStore, ownerID string) ([]string, error) {
	seeds := Defaults()
	var created []string
	for _, list := range [][]PersonaSeed{seeds.Direct, seeds.Hive} {
		for _, seed := range list {
			existing, err := ps.GetByName(ctx, ownerID, seed.Name)
			if err != nil {
				return created, fmt.Errorf("lookup persona %s: %w", seed.Name, err)
			}
			if existing != nil {
				continue
			}

			prompts := seed.Prompts
			if prompts.HiveProtocol == nil && len(seed.Flags) > 0 {
				hp := seeds.HiveProtocol
				prompts.HiveProtocol = &hp
			}
			tp := &store.TrainingProfileData{Version: SeedVersion, Prompts: prompts}
			if err := ps.UpsertTrainingProfile(ctx, tp); err != nil {
				return created, fmt.Errorf("seed training profile %s: %w", seed.Name, err)
			}

			p := seed.Persona(ownerID)
			p.Builtin = false
			p.TrainingProfileID = &tp.ID
			if err := ps.Upsert(ctx, p); err != nil {
				return created, fmt.Errorf("seed persona %s: %w", seed.Name, err)
			}
			slog.Info("bootstrap: seeded persona", "owner", ownerID, "name", seed.Name)
			created = append(created, seed.Name)
		}
	}
	return created, nil
}
