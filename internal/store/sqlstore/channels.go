package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// ChannelStore implements store.ChannelStore.
type ChannelStore struct {
	db *DB
}

func NewChannelStore(db *DB) *ChannelStore {
	return &ChannelStore{db: db}
}

const channelSelectCols = `destination, owner_id, secret, access_token, agent_name, father_user_id, is_enabled, created_at, updated_at`

func (s *ChannelStore) GetByDestination(ctx context.Context, destination string) (*store.ChannelData, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+channelSelectCols+` FROM line_channels WHERE destination = $1`, destination)
	var d store.ChannelData
	err := row.Scan(&d.Destination, &d.OwnerID, &d.Secret, &d.AccessToken, &d.AgentName,
		&d.PrivilegedUserID, &d.Enabled, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *ChannelStore) Upsert(ctx context.Context, ch *store.ChannelData) error {
	now := nowUTC()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	ch.UpdatedAt = now
	if ch.AgentName == "" {
		ch.AgentName = "Waibon"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO line_channels (`+channelSelectCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (destination) DO UPDATE SET
		   owner_id = EXCLUDED.owner_id, secret = EXCLUDED.secret,
		   access_token = EXCLUDED.access_token, agent_name = EXCLUDED.agent_name,
		   father_user_id = EXCLUDED.father_user_id, is_enabled = EXCLUDED.is_enabled,
		   updated_at = EXCLUDED.updated_at`,
		ch.Destination, ch.OwnerID, ch.Secret, ch.AccessToken, ch.AgentName,
		ch.PrivilegedUserID, ch.Enabled, ch.CreatedAt, ch.UpdatedAt,
	)
	return err
}

func (s *ChannelStore) SetEnabled(ctx context.Context, destination string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE line_channels SET is_enabled = $1, updated_at = $2 WHERE destination = $3`,
		enabled, nowUTC(), destination)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ChannelStore) List(ctx context.Context) ([]store.ChannelData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+channelSelectCols+` FROM line_channels ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ChannelData
	for rows.Next() {
		var d store.ChannelData
		if err := rows.Scan(&d.Destination, &d.OwnerID, &d.Secret, &d.AccessToken, &d.AgentName,
			&d.PrivilegedUserID, &d.Enabled, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
