package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thammarongsak/waibon-safe-room/internal/hive"
)

// withHive opens the database and builds the orchestrator. Pending audit
// writes are flushed before returning.
func withHive(fn func(ctx context.Context, o *hive.Orchestrator) error) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := prepareSchema(ctx, cfg, db); err != nil {
		return err
	}

	svc := newServices(cfg, db)
	defer svc.audit.Wait()
	return fn(ctx, svc.hive)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func hiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hive",
		Short: "Run and inspect hive rounds",
	}
	cmd.AddCommand(hiveRunCmd())
	cmd.AddCommand(hiveStatusCmd())
	cmd.AddCommand(hiveStartCmd())
	return cmd
}

func hiveRunCmd() *cobra.Command {
	var req hive.RunRequest
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run <groupId>",
		Short: "Run one hive round for a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.GroupID = args[0]
			return withHive(func(ctx context.Context, o *hive.Orchestrator) error {
				res, err := o.Run(ctx, req)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(res)
				}
				fmt.Printf("session %s: %s (%s)\n", res.SessionID, res.Status, res.StopReason)
				if res.Error != "" {
					fmt.Printf("error: %s\n", res.Error)
				}
				fmt.Println(res.Summary())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "session title for a new session")
	cmd.Flags().IntVar(&req.Rounds, "rounds", 0, "turns to take (default hive.default_rounds, max 10)")
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "opening prompt")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func hiveStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the hive roster, subscriptions and recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHive(func(ctx context.Context, o *hive.Orchestrator) error {
				st, err := o.Status(ctx)
				if err != nil {
					return err
				}
				return printJSON(st)
			})
		},
	}
}

func hiveStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Upsert the roster and publish the kickoff events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHive(func(ctx context.Context, o *hive.Orchestrator) error {
				st, err := o.Start(ctx)
				if err != nil {
					return err
				}
				return printJSON(st)
			})
		},
	}
}
