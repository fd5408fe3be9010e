package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/thammarongsak/waibon-safe-room/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/thammarongsak/waibon-safe-room/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "waibon",
	Short: "Waibon: LINE persona relay and hive room",
	Long:  "Waibon relays LINE conversations to persona-driven LLM replies and runs three-persona hive rounds.",
	Run: func(cmd *cobra.Command, args []string) {
		runGateway()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $WAIBON_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(channelsCmd())
	rootCmd.AddCommand(hiveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(upgradeCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("waibon %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("WAIBON_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// loadConfig loads the config and installs the default logger. The returned
// func closes the log file, if any.
func loadConfig() (*config.Config, func() error, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := config.ParseLogLevel(cfg.Log.Level)
	if verbose {
		level = slog.LevelDebug
	}
	logger, closeLog := config.SetupLogger(cfg.Log.File, level)
	slog.SetDefault(logger)
	return cfg, closeLog, nil
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
