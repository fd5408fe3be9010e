package upgrade

import (
	"context"

	"github.com/thammarongsak/waibon-safe-room/internal/bootstrap"
	"github.com/thammarongsak/waibon-safe-room/internal/store/sqlstore"
)

func init() {
	RegisterDataHook(1, "001_seed_hive_roster", seedHiveRoster)
}

// seedHiveRoster registers the three hive agents and their subscriptions.
func seedHiveRoster(ctx context.Context, db *sqlstore.DB) error {
	hs := sqlstore.NewHiveStore(db)
	agents, subs := bootstrap.HiveRoster()
	if err := hs.UpsertAgents(ctx, agents); err != nil {
		return err
	}
	return hs.UpsertSubscriptions(ctx, subs)
}
