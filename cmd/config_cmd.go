package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/thammarongsak/waibon-safe-room/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Printf("Wrote %s. Secrets are read from the environment only.\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config (secrets shown as set/missing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := printJSON(cfg); err != nil {
				return err
			}
			presence := cfg.SecretPresence()
			names := make([]string, 0, len(presence))
			for name := range presence {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Println("secrets:")
			for _, name := range names {
				state := "missing"
				if presence[name] {
					state = "set"
				}
				fmt.Printf("  %-28s %s\n", name, state)
			}
			return nil
		},
	}
}
