package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/thammarongsak/waibon-safe-room/internal/channels"
	"github.com/thammarongsak/waibon-safe-room/pkg/protocol"
)

// SequencePusher sends texts as separate push calls with pauses between them.
type SequencePusher interface {
	PushSequence(ctx context.Context, token, to string, chunks []string, first, between time.Duration) error
}

// PushSeqHandler serves POST /api/line/push-seq.
type PushSeqHandler struct {
	channels ChannelResolver
	line     SequencePusher
	token    string
}

func NewPushSeqHandler(channels ChannelResolver, line SequencePusher, token string) *PushSeqHandler {
	return &PushSeqHandler{channels: channels, line: line, token: token}
}

// RegisterRoutes registers the push-sequence route.
func (h *PushSeqHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+protocol.RouteLinePushSeq, requireToken(h.token, h.handle))
}

func (h *PushSeqHandler) handle(w http.ResponseWriter, r *http.Request) {
	var req protocol.PushSeqRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}

	token := req.AccessToken
	if token == "" && req.Destination != "" && h.channels != nil {
		ch, err := h.channels.Resolve(r.Context(), req.Destination)
		switch {
		case errors.Is(err, channels.ErrChannelNotFound):
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		default:
			token = ch.AccessToken
		}
	}
	if token == "" || req.To == "" || req.Lines == nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}

	lines := req.Lines
	if len(lines) > protocol.PushSeqMaxLines {
		lines = lines[:protocol.PushSeqMaxLines]
	}
	msgs := make([]string, 0, len(lines))
	for _, l := range lines {
		msgs = append(msgs, channels.Truncate(l, protocol.PushSeqMaxLineRunes))
	}
	delay := protocol.PushSeqDelayMS
	if req.DelayMS != nil && *req.DelayMS >= 0 {
		delay = min(*req.DelayMS, protocol.PushSeqMaxDelayMS)
	}

	err := h.line.PushSequence(r.Context(), token, req.To, msgs,
		protocol.PushSeqFirstDelayMS*time.Millisecond, time.Duration(delay)*time.Millisecond)
	if err != nil {
		slog.Error("line.push_seq", "to", req.To, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "sent": len(msgs)})
}
