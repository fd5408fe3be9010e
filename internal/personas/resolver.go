// Package personas resolves a tenant's persona by name into a ready-to-use
// definition: training profile joined, model reference resolved, defaults applied.
package personas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/thammarongsak/waibon-safe-room/internal/bootstrap"
	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// ErrPersonaNotFound is returned when the persona, or the model it references,
// does not exist for the tenant.
var ErrPersonaNotFound = errors.New("persona not found")

// Resolver loads personas from a PersonaStore.
type Resolver struct {
	store store.PersonaStore
	seeds *bootstrap.Seeds
}

func NewResolver(ps store.PersonaStore) *Resolver {
	return &Resolver{store: ps, seeds: bootstrap.Defaults()}
}

// Load returns the tenant's persona with its model key resolved.
// A model_ref that parses as a UUID is looked up in ai_models; any other value
// is used as the model name; empty leaves the gateway default.
func (r *Resolver) Load(ctx context.Context, tenantID, name string) (*store.PersonaData, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrPersonaNotFound)
	}
	p, err := r.store.GetByName(ctx, tenantID, name)
	if err != nil {
		return nil, fmt.Errorf("load persona %s: %w", name, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s (tenant %s)", ErrPersonaNotFound, name, tenantID)
	}

	if id, perr := uuid.Parse(p.ModelRef); perr == nil {
		m, err := r.store.GetModel(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load model %s for %s: %w", id, name, err)
		}
		if m == nil {
			return nil, fmt.Errorf("%w: model %s referenced by %s", ErrPersonaNotFound, id, name)
		}
		p.Model = m.ModelKey
	}
	p.ApplyDefaults()
	return p, nil
}

// LoadAny tries each name in order and returns the first persona found.
// Errors other than ErrPersonaNotFound stop the search.
func (r *Resolver) LoadAny(ctx context.Context, tenantID string, names ...string) (*store.PersonaData, error) {
	lastErr := fmt.Errorf("%w: no names given", ErrPersonaNotFound)
	for _, n := range names {
		p, err := r.Load(ctx, tenantID, n)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrPersonaNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// LoadOrDefault loads a hive persona by name or alias and falls back to the
// embedded definition when it cannot be resolved. It fails only for names
// that have no embedded definition either.
func (r *Resolver) LoadOrDefault(ctx context.Context, tenantID, name string) (*store.PersonaData, error) {
	seed, hasSeed := r.seeds.HivePersona(name)
	names := []string{name}
	if hasSeed {
		names = append([]string{seed.Name}, seed.Aliases...)
	}

	p, err := r.LoadAny(ctx, tenantID, names...)
	if err == nil {
		if hasSeed {
			p.Name = seed.Name
		}
		r.withHiveProtocol(p)
		return p, nil
	}
	if !hasSeed {
		return nil, err
	}
	slog.Warn("personas: using built-in definition", "persona", seed.Name, "tenant", tenantID, "error", err)
	p = seed.Persona(tenantID)
	r.withHiveProtocol(p)
	return p, nil
}

func (r *Resolver) withHiveProtocol(p *store.PersonaData) {
	if p.Prompts.HiveProtocol == nil {
		hp := r.seeds.HiveProtocol
		p.Prompts.HiveProtocol = &hp
	}
}
