package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/thammarongsak/waibon-safe-room/internal/hive"
	"github.com/thammarongsak/waibon-safe-room/pkg/protocol"
)

// HiveService is the orchestrator surface the admin endpoints need.
type HiveService interface {
	Start(ctx context.Context) (*hive.Status, error)
	Status(ctx context.Context) (*hive.Status, error)
	Run(ctx context.Context, req hive.RunRequest) (*hive.RunResult, error)
}

// HiveHandler serves hive start/status/run.
type HiveHandler struct {
	hive  HiveService
	token string
}

func NewHiveHandler(svc HiveService, token string) *HiveHandler {
	return &HiveHandler{hive: svc, token: token}
}

// RegisterRoutes registers the hive admin routes on the given mux.
func (h *HiveHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+protocol.RouteHiveStart, requireToken(h.token, h.handleStart))
	mux.HandleFunc("GET "+protocol.RouteHiveStatus, requireToken(h.token, h.handleStatus))
	mux.HandleFunc("POST "+protocol.RouteHiveRun, requireToken(h.token, h.handleRun))
}

func (h *HiveHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	st, err := h.hive.Start(r.Context())
	if err != nil {
		slog.Error("hive.start", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"started": true,
		"agents":  st.Agents,
		"subs":    st.Subs,
		"last10":  st.Last10,
	})
}

func (h *HiveHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.hive.Status(r.Context())
	if err != nil {
		slog.Error("hive.status", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"agents": st.Agents,
		"subs":   st.Subs,
		"last10": st.Last10,
	})
}

func (h *HiveHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req protocol.HiveRunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.GroupID) == "" {
		writeError(w, http.StatusBadRequest, "groupId required")
		return
	}

	res, err := h.hive.Run(r.Context(), hive.RunRequest{
		GroupID: req.GroupID,
		Title:   req.Title,
		Rounds:  req.Rounds,
		Prompt:  req.Prompt,
	})
	if err != nil {
		slog.Error("hive.run", "group", req.GroupID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         res.StopReason != hive.StopError,
		"sessionId":  res.SessionID,
		"status":     res.Status,
		"stopReason": res.StopReason,
		"error":      res.Error,
		"turns":      res.Turns,
		"transcript": res.Transcript,
		"summary":    res.Summary(),
	})
}
