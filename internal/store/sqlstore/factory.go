package sqlstore

import (
	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// NewStores creates all stores over one DB handle.
func NewStores(db *DB) *store.Stores {
	return &store.Stores{
		Channels:  NewChannelStore(db),
		Personas:  NewPersonaStore(db),
		Memory:    NewMemoryStore(db),
		Hive:      NewHiveStore(db),
		AgentLogs: NewAgentLogStore(db),
	}
}
