package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/huddle/internal/model"
)

type GroupStore struct {
	db *sql.DB
}

func NewGroupStore(db *sql.DB) *GroupStore {
	return &GroupStore{db: db}
}

const groupCols = `id, name, description, code, creator_id, members, image_url, image_data, image_digest, synced_at`

func scanGroup(scanner interface{ Scan(...any) error }) (*model.MirrorGroup, error) {
	var g model.MirrorGroup
	var members string
	var syncedAt int64
	err := scanner.Scan(&g.ID, &g.Name, &g.Description, &g.Code, &g.CreatorID, &members, &g.ImageURL, &g.Image, &g.ImageDigest, &syncedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeList(members, &g.Members); err != nil {
		return nil, err
	}
	g.SyncedAt = fromMillis(syncedAt)
	return &g, nil
}

// Upsert inserts the group or overwrites every remote field of an existing
// row. A cached image survives only while image_url is unchanged.
func (s *GroupStore) Upsert(ctx context.Context, g model.Group, syncedAt time.Time) error {
	members, err := encodeList(nonNil(g.Members))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mirror_groups (id, name, description, code, creator_id, members, image_url, synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     name = excluded.name,
		     description = excluded.description,
		     code = excluded.code,
		     creator_id = excluded.creator_id,
		     members = excluded.members,
		     image_data = CASE WHEN mirror_groups.image_url = excluded.image_url THEN mirror_groups.image_data ELSE NULL END,
		     image_digest = CASE WHEN mirror_groups.image_url = excluded.image_url THEN mirror_groups.image_digest ELSE '' END,
		     image_url = excluded.image_url,
		     synced_at = excluded.synced_at`,
		g.ID, g.Name, g.Description, g.Code, g.CreatorID, members, g.ImageURL, toMillis(syncedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}
	return nil
}

func (s *GroupStore) GetByID(ctx context.Context, id string) (*model.MirrorGroup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupCols+` FROM mirror_groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

// ReadAll returns up to limit groups in store order. limit <= 0 means all.
// A non-empty owner restricts the read to the groups recorded for that user.
func (s *GroupStore) ReadAll(ctx context.Context, owner string, limit int) ([]model.MirrorGroup, error) {
	if owner == "" {
		return s.list(ctx, `SELECT `+groupCols+` FROM mirror_groups LIMIT ?`, sqlLimit(limit))
	}
	return s.list(ctx, `SELECT `+groupCols+` FROM mirror_groups`+ownedBy+` LIMIT ?`, owner, string(KindGroup), sqlLimit(limit))
}

func (s *GroupStore) list(ctx context.Context, query string, args ...any) ([]model.MirrorGroup, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []model.MirrorGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// AttachImage stores a downloaded image payload. The write only lands if
// the row still points at imageURL; it reports whether a row was updated.
func (s *GroupStore) AttachImage(ctx context.Context, id, imageURL string, data []byte, digest string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mirror_groups SET image_data = ?, image_digest = ? WHERE id = ? AND image_url = ?`,
		data, digest, id, imageURL,
	)
	if err != nil {
		return false, fmt.Errorf("attach group image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
