package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thammarongsak/waibon-safe-room/internal/config"
	"github.com/thammarongsak/waibon-safe-room/internal/personas"
	"github.com/thammarongsak/waibon-safe-room/internal/store/sqlstore"
	"github.com/thammarongsak/waibon-safe-room/internal/upgrade"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
	failMark = color.New(color.FgRed, color.Bold).SprintFunc()
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment, database and persona health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println(color.CyanString("waibon doctor"))
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(warnMark(" (not found, using defaults + env)"))
	} else {
		fmt.Println(okMark(" (OK)"))
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  %s %s\n", failMark("Config load error:"), err)
		return
	}

	fmt.Println()
	fmt.Println("  Secrets:")
	presence := cfg.SecretPresence()
	names := make([]string, 0, len(presence))
	for name := range presence {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		status := warnMark("missing")
		if presence[name] {
			status = okMark("set")
		}
		fmt.Printf("    %-28s %s\n", name+":", status)
	}

	fmt.Println()
	fmt.Println("  Database:")
	db, err := openDatabase(cfg)
	if err != nil {
		fmt.Printf("    %-12s %s\n", "Status:", failMark("CONNECT FAILED ("+err.Error()+")"))
		return
	}
	defer db.Close()
	fmt.Printf("    %-12s %s\n", "Dialect:", db.Dialect)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	checkSchema(ctx, db)
	checkChannels(ctx, db)
	checkPersonas(ctx, cfg, db)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSchema(ctx context.Context, db *sqlstore.DB) {
	s, err := upgrade.CheckSchema(ctx, db)
	switch {
	case err != nil:
		fmt.Printf("    %-12s %s\n", "Schema:", failMark("CHECK FAILED ("+err.Error()+")"))
		return
	case s.Dirty:
		fmt.Printf("    %-12s %s\n", "Schema:", failMark(fmt.Sprintf("v%d DIRTY, run: waibon migrate force %d", s.CurrentVersion, s.CurrentVersion-1)))
	case s.Compatible:
		fmt.Printf("    %-12s %s\n", "Schema:", okMark(fmt.Sprintf("v%d (up to date)", s.CurrentVersion)))
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Printf("    %-12s %s\n", "Schema:", failMark(fmt.Sprintf("v%d (binary too old, requires v%d)", s.CurrentVersion, s.RequiredVersion)))
	default:
		fmt.Printf("    %-12s %s\n", "Schema:", warnMark(fmt.Sprintf("v%d (upgrade needed, run: waibon upgrade)", s.CurrentVersion)))
	}

	pending, err := upgrade.PendingHooks(ctx, db)
	if err == nil && len(pending) > 0 {
		fmt.Printf("    %-12s %s\n", "Data hooks:", warnMark(fmt.Sprintf("%d pending", len(pending))))
	} else if err == nil {
		fmt.Printf("    %-12s %s\n", "Data hooks:", okMark("all applied"))
	}
}

func checkChannels(ctx context.Context, db *sqlstore.DB) {
	fmt.Println()
	fmt.Println("  Channels:")
	list, err := sqlstore.NewChannelStore(db).List(ctx)
	if err != nil {
		fmt.Printf("    (could not query channels: %s)\n", err)
		return
	}
	if len(list) == 0 {
		fmt.Println("    (none configured in database)")
		return
	}
	for _, ch := range list {
		status := okMark("enabled")
		if !ch.Enabled {
			status = warnMark("disabled")
		} else if ch.Secret == "" || ch.AccessToken == "" {
			status = failMark("enabled (missing credentials)")
		}
		fmt.Printf("    %-36s %s -> %s\n", ch.Destination+":", status, ch.AgentName)
	}
}

func checkPersonas(ctx context.Context, cfg *config.Config, db *sqlstore.DB) {
	fmt.Println()
	fmt.Printf("  Personas (tenant %q):\n", cfg.Tenant.OwnerID)
	resolver := personas.NewResolver(sqlstore.NewPersonaStore(db))
	for _, name := range []string{cfg.Line.DefaultPersona, "WaibonOS", "WaibeAI", "ZetaAI"} {
		p, err := resolver.Load(ctx, cfg.Tenant.OwnerID, name)
		if err != nil {
			fmt.Printf("    %-12s %s\n", name+":", warnMark(err.Error()))
			continue
		}
		model := p.Model
		if model == "" {
			model = cfg.LLM.Model
		}
		fmt.Printf("    %-12s %s (model %s, training %s)\n", name+":", okMark("OK"), model, p.TrainingVersion)
	}
}
