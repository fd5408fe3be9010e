package upgrade

import (
	"context"
	"errors"
	"testing"

	"github.com/thammarongsak/waibon-safe-room/internal/bootstrap"
	"github.com/thammarongsak/waibon-safe-room/internal/store/sqlstore"
)

func openMigrated(t *testing.T) *sqlstore.DB {
	t.Helper()
	db, err := sqlstore.OpenDB(sqlstore.DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := sqlstore.MigrateUp(context.Background(), db, ""); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	return db
}

func TestCheckSchemaFreshDatabase(t *testing.T) {
	db, err := sqlstore.OpenDB(sqlstore.DialectSQLite, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s, err := CheckSchema(context.Background(), db)
	if err != nil {
		t.Fatalf("CheckSchema: %v", err)
	}
	if !s.NeedsMigration || !errors.Is(s.Err(), ErrSchemaOutdated) {
		t.Errorf("fresh db status = %+v, err = %v", s, s.Err())
	}
}

func TestCheckSchemaAfterMigrate(t *testing.T) {
	s, err := CheckSchema(context.Background(), openMigrated(t))
	if err != nil {
		t.Fatalf("CheckSchema: %v", err)
	}
	if !s.Compatible || s.Err() != nil {
		t.Errorf("status = %+v", s)
	}
}

func TestSchemaStatusErr(t *testing.T) {
	tests := []struct {
		name string
		s    SchemaStatus
		want error
	}{
		{"dirty", SchemaStatus{Dirty: true}, ErrSchemaDirty},
		{"ahead", SchemaStatus{CurrentVersion: 9, RequiredVersion: 1}, ErrSchemaAhead},
		{"outdated", SchemaStatus{CurrentVersion: 0, RequiredVersion: 1, NeedsMigration: true}, ErrSchemaOutdated},
		{"ok", SchemaStatus{CurrentVersion: 1, RequiredVersion: 1, Compatible: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Err(); !errors.Is(got, tt.want) || (tt.want == nil && got != nil) {
				t.Errorf("Err() = %v, want %v", got, tt.want)
			}
			if tt.want != nil && FormatError(&tt.s) == "" {
				t.Error("FormatError returned empty message")
			}
		})
	}
}

func TestRunPendingHooksSeedsRosterOnce(t *testing.T) {
	ctx := context.Background()
	db := openMigrated(t)

	pending, err := PendingHooks(ctx, db)
	if err != nil {
		t.Fatalf("PendingHooks: %v", err)
	}
	if len(pending) != 1 || pending[0] != "001_seed_hive_roster" {
		t.Fatalf("pending = %v", pending)
	}

	n, err := RunPendingHooks(ctx, db)
	if err != nil || n != 1 {
		t.Fatalf("RunPendingHooks = %d, %v", n, err)
	}
	n, err = RunPendingHooks(ctx, db)
	if err != nil || n != 0 {
		t.Fatalf("second RunPendingHooks = %d, %v", n, err)
	}

	hs := sqlstore.NewHiveStore(db)
	agents, err := hs.ListAgents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 3 {
		t.Fatalf("agents = %d, want 3", len(agents))
	}
	subs, err := hs.ListSubscriptions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range subs {
		if s.Topic != bootstrap.HiveTopic {
			t.Errorf("subscription topic = %q", s.Topic)
		}
	}
}
