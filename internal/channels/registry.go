package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

var (
	// ErrChannelNotFound is returned when no enabled channel matches a destination.
	ErrChannelNotFound = errors.New("line channel not found")
	// ErrChannelDisabled wraps ErrChannelNotFound for channels turned off by an operator.
	ErrChannelDisabled = fmt.Errorf("%w: disabled", ErrChannelNotFound)
)

// Registry resolves webhook destinations to channel bindings.
type Registry struct {
	channels store.ChannelStore
	fallback *store.ChannelData
}

// NewRegistry creates a registry over the channel store. fallback, when non-nil,
// answers for destinations with no row (single-tenant env configuration).
func NewRegistry(cs store.ChannelStore, fallback *store.ChannelData) *Registry {
	return &Registry{channels: cs, fallback: fallback}
}

// Resolve returns the enabled channel bound to destination.
func (r *Registry) Resolve(ctx context.Context, destination string) (*store.ChannelData, error) {
	var ch *store.ChannelData
	if r.channels != nil && destination != "" {
		var err error
		ch, err = r.channels.GetByDestination(ctx, destination)
		if err != nil {
			return nil, fmt.Errorf("lookup channel %s: %w", destination, err)
		}
	}
	if ch == nil {
		if r.fallback != nil {
			fb := *r.fallback
			if fb.Destination == "" {
				fb.Destination = destination
			}
			return &fb, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, destination)
	}
	if !ch.Enabled {
		slog.Debug("line channel disabled", "destination", destination)
		return nil, fmt.Errorf("%w: %s", ErrChannelDisabled, destination)
	}
	return ch, nil
}

// HasFallback reports whether an env-configured channel is present.
func (r *Registry) HasFallback() bool { return r.fallback != nil }
