package sqlstore

import (
	"context"

	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// MemoryStore implements store.MemoryStore over memory_chain.
type MemoryStore struct {
	db *DB
}

func NewMemoryStore(db *DB) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) Append(ctx context.Context, rec *store.MemoryRecord) error {
	if rec.Kind == "" {
		rec.Kind = store.MemoryKindDialog
	}
	rec.CreatedAt = nowUTC()
	return s.db.QueryRowContext(ctx,
		`INSERT INTO memory_chain (owner_id, subject, kind, data_b64, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING idx`,
		rec.OwnerID, rec.Subject, rec.Kind, rec.DataB64, rec.CreatedAt,
	).Scan(&rec.Idx)
}

func (s *MemoryStore) Recent(ctx context.Context, ownerID, subject, kind string, limit int) ([]store.MemoryRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, owner_id, subject, kind, data_b64, created_at FROM memory_chain
		 WHERE owner_id = $1 AND subject = $2 AND kind = $3
		 ORDER BY idx DESC LIMIT $4`,
		ownerID, subject, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.MemoryRecord
	for rows.Next() {
		var r store.MemoryRecord
		if err := rows.Scan(&r.Idx, &r.OwnerID, &r.Subject, &r.Kind, &r.DataB64, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
