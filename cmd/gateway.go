package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thammarongsak/waibon-safe-room/internal/agent"
	"github.com/thammarongsak/waibon-safe-room/internal/audit"
	"github.com/thammarongsak/waibon-safe-room/internal/bus"
	"github.com/thammarongsak/waibon-safe-room/internal/channels"
	"github.com/thammarongsak/waibon-safe-room/internal/channels/line"
	"github.com/thammarongsak/waibon-safe-room/internal/config"
	"github.com/thammarongsak/waibon-safe-room/internal/gateway"
	httpapi "github.com/thammarongsak/waibon-safe-room/internal/http"
	"github.com/thammarongsak/waibon-safe-room/internal/hive"
	"github.com/thammarongsak/waibon-safe-room/internal/memory"
	"github.com/thammarongsak/waibon-safe-room/internal/personas"
	"github.com/thammarongsak/waibon-safe-room/internal/providers"
	"github.com/thammarongsak/waibon-safe-room/internal/store"
	"github.com/thammarongsak/waibon-safe-room/internal/store/sqlstore"
	"github.com/thammarongsak/waibon-safe-room/internal/tracing"
)

func gatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the HTTP gateway (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
	cmd.Flags().StringVar(&migrationsDir, "migrations-dir", "", "apply migrations from this directory instead of the embedded ones")
	return cmd
}

func runGateway() {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serveGateway(ctx, cfg); err != nil {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

// services are the collaborators shared by the gateway and the hive CLI.
type services struct {
	stores   *store.Stores
	personas *personas.Resolver
	llm      *providers.Gateway
	audit    *audit.Recorder
	hive     *hive.Orchestrator
}

func newServices(cfg *config.Config, db *sqlstore.DB) *services {
	stores := sqlstore.NewStores(db)
	resolver := personas.NewResolver(stores.Personas)
	llm := providers.NewGatewayFromConfig(cfg.LLM)
	rec := audit.NewRecorder(stores.AgentLogs)
	return &services{
		stores:   stores,
		personas: resolver,
		llm:      llm,
		audit:    rec,
		hive:     hive.New(stores.Hive, resolver, llm, rec, hive.OptionsFromConfig(cfg)),
	}
}

// envChannel is the single-tenant channel configured through LINE_* env vars.
func envChannel(cfg *config.Config) *store.ChannelData {
	if !cfg.Line.HasEnvChannel() {
		return nil
	}
	return &store.ChannelData{
		OwnerID:          cfg.Tenant.OwnerID,
		Secret:           cfg.Line.ChannelSecret,
		AccessToken:      cfg.Line.ChannelAccessToken,
		AgentName:        cfg.Line.DefaultPersona,
		PrivilegedUserID: cfg.Tenant.FatherUserID,
		Enabled:          true,
	}
}

func serveGateway(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry, Version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := prepareSchema(ctx, cfg, db); err != nil {
		return err
	}

	svc := newServices(cfg, db)
	defer svc.audit.Wait()

	registry := channels.NewRegistry(svc.stores.Channels, envChannel(cfg))
	if registry.HasFallback() {
		slog.Info("env LINE channel enabled", "persona", cfg.Line.DefaultPersona, "tenant", cfg.Tenant.OwnerID)
	}
	if cfg.LLM.APIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, replies will echo the input")
	}
	if cfg.Gateway.Token == "" {
		slog.Warn("gateway token not set, admin endpoints are open")
	}

	lineClient := line.NewClient(cfg.Line.APIBase, cfg.Line.PushDelay.D(), nil)
	relay := agent.NewRelay(agent.Deps{
		Personas: svc.personas,
		Memory:   memory.New(svc.stores.Memory, cfg.Memory.Window),
		LLM:      svc.llm,
		Hive:     svc.hive,
		Line:     lineClient,
		Audit:    svc.audit,
	}, agent.OptionsFromConfig(cfg))

	consumeCtx, stopConsumers := context.WithCancel(ctx)
	defer stopConsumers()
	msgBus := bus.New(cfg.Gateway.QueueSize)
	waitConsumers := agent.RunConsumers(consumeCtx, msgBus, relay, cfg.Gateway.Workers)

	server := gateway.NewServer(cfg,
		httpapi.NewWebhookHandler(registry, msgBus, cfg.Gateway.MaxBodyBytes),
		httpapi.NewHealthHandler(cfg, svc.stores.Personas, svc.personas),
	)
	server.SetHiveHandler(httpapi.NewHiveHandler(svc.hive, cfg.Gateway.Token))
	server.SetPushSeqHandler(httpapi.NewPushSeqHandler(registry, lineClient, cfg.Gateway.Token))

	err = server.Start(ctx)
	stopConsumers()
	waitConsumers()
	if pending := msgBus.Pending(); pending > 0 {
		slog.Warn("inbound events left unprocessed", "count", pending)
	}
	return err
}
