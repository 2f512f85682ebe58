package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/huddle/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberCols = `id, group_id, name, email, image_url, image_data, image_digest, synced_at`

func scanMember(scanner interface{ Scan(...any) error }) (*model.MirrorMember, error) {
	var m model.MirrorMember
	var syncedAt int64
	err := scanner.Scan(&m.ID, &m.GroupID, &m.Name, &m.Email, &m.ImageURL, &m.Image, &m.ImageDigest, &syncedAt)
	if err != nil {
		return nil, err
	}
	m.SyncedAt = fromMillis(syncedAt)
	return &m, nil
}

// Upsert inserts the member or overwrites it in place. The row is keyed by
// member id alone, so a member seen through a second group moves to it.
func (s *MemberStore) Upsert(ctx context.Context, groupID string, m model.Member, syncedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mirror_members (id, group_id, name, email, image_url, synced_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     group_id = excluded.group_id,
		     name = excluded.name,
		     email = excluded.email,
		     image_data = CASE WHEN mirror_members.image_url = excluded.image_url THEN mirror_members.image_data ELSE NULL END,
		     image_digest = CASE WHEN mirror_members.image_url = excluded.image_url THEN mirror_members.image_digest ELSE '' END,
		     image_url = excluded.image_url,
		     synced_at = excluded.synced_at`,
		m.ID, groupID, m.Name, m.Email, m.ImageURL, toMillis(syncedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (s *MemberStore) GetByID(ctx context.Context, id string) (*model.MirrorMember, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM mirror_members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) AttachImage(ctx context.Context, id, imageURL string, data []byte, digest string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mirror_members SET image_data = ?, image_digest = ? WHERE id = ? AND image_url = ?`,
		data, digest, id, imageURL,
	)
	if err != nil {
		return false, fmt.Errorf("attach member image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
