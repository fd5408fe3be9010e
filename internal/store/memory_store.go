package store

import (
	"context"
	"time"
)

// MemoryKindDialog tags conversation turns in memory_chain.
const MemoryKindDialog = "dialog"

// MemoryRecord is one memory_chain row. DataB64 is opaque to the store.
type MemoryRecord struct {
	Idx       int64     `json:"idx"`
	OwnerID   string    `json:"owner_id"`
	Subject   string    `json:"subject"`
	Kind      string    `json:"kind"`
	DataB64   string    `json:"data_b64"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryStore is the append-only memory chain.
type MemoryStore interface {
	Append(ctx context.Context, rec *MemoryRecord) error
	// Recent returns up to limit records of the given kind, newest first.
	Recent(ctx context.Context, ownerID, subject, kind string, limit int) ([]MemoryRecord, error)
}
