package store

import (
	"errors"

	"github.com/google/uuid"
)

// Stores is the top-level container for all storage backends.
type Stores struct {
	Channels  ChannelStore
	Personas  PersonaStore
	Memory    MemoryStore
	Hive      HiveStore
	AgentLogs AgentLogStore
}

// ErrNotFound is returned by domain layers when a row a caller depends on is missing.
// Stores themselves return (nil, nil) for a missing single row.
var ErrNotFound = errors.New("not found")

// GenNewID returns a time-ordered UUID v7.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
