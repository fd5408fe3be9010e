package store

import (
	"context"
	"time"
)

// ChannelData is one configured LINE channel binding.
type ChannelData struct {
	Destination      string    `json:"destination"`
	OwnerID          string    `json:"owner_id"`
	Secret           string    `json:"-"`
	AccessToken      string    `json:"-"`
	AgentName        string    `json:"agent_name"`
	PrivilegedUserID string    `json:"father_user_id,omitempty"`
	Enabled          bool      `json:"is_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ChannelStore manages line_channels rows.
type ChannelStore interface {
	// GetByDestination returns nil, nil when no row exists.
	GetByDestination(ctx context.Context, destination string) (*ChannelData, error)
	Upsert(ctx context.Context, ch *ChannelData) error
	SetEnabled(ctx context.Context, destination string, enabled bool) error
	List(ctx context.Context) ([]ChannelData, error)
}
