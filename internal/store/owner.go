package store

import (
	"context"
	"database/sql"
	"fmt"
)

// OwnerStore records which mirrored entities belong to which user, so that
// offline reads show each user only their own records.
type OwnerStore struct {
	db *sql.DB
}

func NewOwnerStore(db *sql.DB) *OwnerStore {
	return &OwnerStore{db: db}
}

// Replace sets the user's entities of one kind to exactly ids.
func (s *OwnerStore) Replace(ctx context.Context, userID string, kind Kind, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin owners: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mirror_owners WHERE user_id = ? AND kind = ?`, userID, string(kind)); err != nil {
		return fmt.Errorf("clear owners: %w", err)
	}
	for _, id := range ids {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO mirror_owners (user_id, kind, entity_id) VALUES (?, ?, ?)`,
			userID, string(kind), id)
		if err != nil {
			return fmt.Errorf("insert owner %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// IDs returns the ids of the user's entities of one kind.
func (s *OwnerStore) IDs(ctx context.Context, userID string, kind Kind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id FROM mirror_owners WHERE user_id = ? AND kind = ? ORDER BY entity_id`,
		userID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const ownedBy = ` WHERE id IN (SELECT entity_id FROM mirror_owners WHERE user_id = ? AND kind = ?)`
