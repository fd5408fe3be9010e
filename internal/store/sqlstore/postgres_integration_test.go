//go:build integration

package sqlstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

func startPostgres(t *testing.T) *DB {
	t.Helper()
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "waibon",
				"POSTGRES_PASSWORD": "waibon",
				"POSTGRES_DB":       "waibon",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://waibon:waibon@%s:%s/waibon?sslmode=disable", host, port.Port())
	db, err := OpenDB(DialectPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = MigrateUp(ctx, db, "")
	require.NoError(t, err)
	return db
}

func TestPostgresStores(t *testing.T) {
	db := startPostgres(t)
	stores := NewStores(db)
	ctx := context.Background()

	require.NoError(t, stores.Channels.Upsert(ctx, &store.ChannelData{
		Destination: "Ubot", OwnerID: "o", Secret: "s", AccessToken: "t", Enabled: true,
	}))
	ch, err := stores.Channels.GetByDestination(ctx, "Ubot")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "Waibon", ch.AgentName)

	sess := &store.HiveSessionData{GroupID: "G", Title: "Hive Room"}
	require.NoError(t, stores.Hive.CreateSession(ctx, sess))
	require.NoError(t, stores.Hive.AppendTurn(ctx, &store.HiveTurnData{SessionID: sess.ID, TurnNo: 1, AgentName: "WaibonOS", Output: "x"}))
	got, err := stores.Hive.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LastTurn)

	require.NoError(t, stores.Memory.Append(ctx, &store.MemoryRecord{OwnerID: "o", Subject: "s", DataB64: "e30="}))
	recs, err := stores.Memory.Recent(ctx, "o", "s", store.MemoryKindDialog, 12)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	require.NoError(t, stores.AgentLogs.Insert(ctx, &store.AgentLogData{OwnerID: "o", AgentName: "Waibon", OK: true}))
}
