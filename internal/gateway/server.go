package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/thammarongsak/waibon-safe-room/internal/config"
	httpapi "github.com/thammarongsak/waibon-safe-room/internal/http"
)

// defaultShutdownTimeout is used when gateway.shutdown_timeout is unset.
const defaultShutdownTimeout = 10 * time.Second

// Server is the HTTP gateway: LINE webhook, hive admin, push-seq and health.
type Server struct {
	cfg *config.Config

	webhookHandler *httpapi.WebhookHandler
	hiveHandler    *httpapi.HiveHandler    // nil = hive admin API disabled
	healthHandler  *httpapi.HealthHandler
	pushSeqHandler *httpapi.PushSeqHandler // nil = push-seq disabled

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a gateway server around the webhook handler.
func NewServer(cfg *config.Config, webhook *httpapi.WebhookHandler, health *httpapi.HealthHandler) *Server {
	return &Server{cfg: cfg, webhookHandler: webhook, healthHandler: health}
}

func (s *Server) SetHiveHandler(h *httpapi.HiveHandler) { s.hiveHandler = h }

func (s *Server) SetPushSeqHandler(h *httpapi.PushSeqHandler) { s.pushSeqHandler = h }

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()

	if s.webhookHandler != nil {
		s.webhookHandler.RegisterRoutes(mux)
	}
	if s.healthHandler != nil {
		s.healthHandler.RegisterRoutes(mux)
	}
	if s.hiveHandler != nil {
		s.hiveHandler.RegisterRoutes(mux)
	}
	if s.pushSeqHandler != nil {
		s.pushSeqHandler.RegisterRoutes(mux)
	}

	s.mux = mux
	return mux
}

// Start listens until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the gateway on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway starting", "addr", ln.Addr().String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		timeout := s.cfg.Gateway.ShutdownTimeout.D()
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("gateway shutdown", "error", err)
		}
	}()

	if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	<-done
	return nil
}
