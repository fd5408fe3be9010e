package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
	"github.com/thammarongsak/waibon-safe-room/internal/store/sqlstore"
)

// withChannelStore opens the configured database, prepares its schema and
// hands fn the channel store.
func withChannelStore(fn func(ctx context.Context, cs store.ChannelStore, ownerID string) error) error {
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
	return fn(ctx, sqlstore.NewChannelStore(db), cfg.Tenant.OwnerID)
}

func channelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage LINE channel bindings",
	}
	cmd.AddCommand(channelsListCmd())
	cmd.AddCommand(channelsAddCmd())
	cmd.AddCommand(channelsToggleCmd("enable", true))
	cmd.AddCommand(channelsToggleCmd("disable", false))
	return cmd
}

func channelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChannelStore(func(ctx context.Context, cs store.ChannelStore, _ string) error {
				list, err := cs.List(ctx)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Println("No channels configured.")
					return nil
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "DESTINATION\tTENANT\tPERSONA\tPRIVILEGED\tENABLED")
				for _, ch := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", ch.Destination, ch.OwnerID, ch.AgentName, ch.PrivilegedUserID, ch.Enabled)
				}
				return tw.Flush()
			})
		},
	}
}

func channelsAddCmd() *cobra.Command {
	var ch store.ChannelData
	var disabled bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a channel (interactive when flags are missing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChannelStore(func(ctx context.Context, cs store.ChannelStore, ownerID string) error {
				if ch.OwnerID == "" {
					ch.OwnerID = ownerID
				}
				if ch.Destination == "" || ch.Secret == "" || ch.AccessToken == "" || ch.OwnerID == "" {
					if err := channelForm(&ch).Run(); err != nil {
						return fmt.Errorf("channel form: %w", err)
					}
				}
				if ch.AgentName == "" {
					ch.AgentName = "Waibon"
				}
				ch.Enabled = !disabled
				if err := cs.Upsert(ctx, &ch); err != nil {
					return err
				}
				fmt.Printf("Channel %s bound to %s for tenant %s.\n", ch.Destination, ch.AgentName, ch.OwnerID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ch.Destination, "destination", "", "bot user id from the webhook destination field")
	cmd.Flags().StringVar(&ch.OwnerID, "owner", "", "tenant id (default: tenant.owner_id)")
	cmd.Flags().StringVar(&ch.Secret, "secret", "", "channel secret")
	cmd.Flags().StringVar(&ch.AccessToken, "token", "", "channel access token")
	cmd.Flags().StringVar(&ch.AgentName, "persona", "", "persona name (default Waibon)")
	cmd.Flags().StringVar(&ch.PrivilegedUserID, "father", "", "privileged LINE user id")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the channel disabled")
	return cmd
}

func required(label string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(label + " is required")
		}
		return nil
	}
}

func channelForm(ch *store.ChannelData) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Destination (bot user id)").Value(&ch.Destination).Validate(required("destination")),
			huh.NewInput().Title("Tenant id").Value(&ch.OwnerID).Validate(required("tenant")),
			huh.NewInput().Title("Persona").Placeholder("Waibon").Value(&ch.AgentName),
			huh.NewInput().Title("Privileged LINE user id").Description("Optional: replies to this user use the father identity").Value(&ch.PrivilegedUserID),
		),
		huh.NewGroup(
			huh.NewInput().Title("Channel secret").EchoMode(huh.EchoModePassword).Value(&ch.Secret).Validate(required("secret")),
			huh.NewInput().Title("Channel access token").EchoMode(huh.EchoModePassword).Value(&ch.AccessToken).Validate(required("access token")),
		),
	)
}

func channelsToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <destination>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChannelStore(func(ctx context.Context, cs store.ChannelStore, _ string) error {
				if err := cs.SetEnabled(ctx, args[0], enabled); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("channel %s not found", args[0])
					}
					return err
				}
				fmt.Printf("Channel %s %sd.\n", args[0], use)
				return nil
			})
		},
	}
}
