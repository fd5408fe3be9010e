package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thammarongsak/waibon-safe-room/internal/bootstrap"
	"github.com/thammarongsak/waibon-safe-room/internal/store/sqlstore"
)

func seedCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the built-in personas for a tenant",
		Long:  "Creates every embedded default persona the tenant does not have yet. Existing personas are left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			if owner == "" {
				owner = cfg.Tenant.OwnerID
			}
			if owner == "" {
				return fmt.Errorf("tenant required: pass --owner or set WAIBON_OWNER_ID")
			}

			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			ctx := context.Background()
			if err := prepareSchema(ctx, cfg, db); err != nil {
				return err
			}

			created, err := bootstrap.SeedPersonas(ctx, sqlstore.NewPersonaStore(db), owner)
			if err != nil {
				return err
			}
			if len(created) == 0 {
				fmt.Printf("All built-in personas already exist for %s.\n", owner)
				return nil
			}
			fmt.Printf("Seeded %d persona(s) for %s (training %s):\n", len(created), owner, bootstrap.SeedVersion)
			for _, name := range created {
				fmt.Printf("  - %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "tenant id (default: tenant.owner_id / WAIBON_OWNER_ID)")
	return cmd
}
