package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/thammarongsak/waibon-safe-room/internal/config"
	"github.com/thammarongsak/waibon-safe-room/internal/personas"
	"github.com/thammarongsak/waibon-safe-room/internal/store"
	"github.com/thammarongsak/waibon-safe-room/pkg/protocol"
)

// PersonaLoader resolves one persona for the agent health check.
type PersonaLoader interface {
	Load(ctx context.Context, tenantID, name string) (*store.PersonaData, error)
}

// HealthHandler reports secret presence and store reachability. Secret values
// are never included, only whether they are set.
type HealthHandler struct {
	cfg      *config.Config
	personas store.PersonaStore
	loader   PersonaLoader
}

func NewHealthHandler(cfg *config.Config, ps store.PersonaStore, loader PersonaLoader) *HealthHandler {
	return &HealthHandler{cfg: cfg, personas: ps, loader: loader}
}

// RegisterRoutes registers /health and the per-agent check.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+protocol.RouteHealth, h.handleHealth)
	mux.HandleFunc("GET "+protocol.RouteAgentHealth, requireToken(h.cfg.Gateway.Token, h.handleAgent))
}

func (h *HealthHandler) mode() string {
	if h.cfg.Database.IsPostgres() {
		return "postgres"
	}
	return "sqlite"
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"ok":     true,
		"mode":   h.mode(),
		"env":    h.cfg.SecretPresence(),
		"sample": nil,
	}

	list, err := h.personas.List(r.Context(), h.cfg.Tenant.OwnerID)
	if err != nil {
		slog.Error("health: read personas failed", "error", err)
		resp["ok"] = false
		resp["error"] = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	if len(list) > 0 {
		p := list[0]
		p.ApplyDefaults()
		resp["sample"] = protocol.HealthSample{ID: p.ID.String(), Name: p.Name, TrainingVersion: p.TrainingVersion}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) handleAgent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	env := h.cfg.SecretPresence()

	p, err := h.loader.Load(r.Context(), h.cfg.Tenant.OwnerID, name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, personas.ErrPersonaNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]interface{}{"ok": false, "env": env, "error": err.Error()})
		return
	}

	tools, models := p.Capabilities.Tools, p.Capabilities.Models
	if tools == nil {
		tools = []string{}
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":  true,
		"env": env,
		"agent": protocol.AgentHealth{
			ID:              p.ID.String(),
			Name:            p.Name,
			Model:           p.Model,
			TrainingVersion: p.TrainingVersion,
			Tools:           tools,
			Models:          models,
		},
	})
}
