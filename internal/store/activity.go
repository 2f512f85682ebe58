package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/huddle/internal/model"
)

type ActivityStore struct {
	db *sql.DB
}

func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

const activityCols = `id, title, group_id, group_name, locations, participants, status, start_time, end_time, notes, created_at, synced_at`

func scanActivity(scanner interface{ Scan(...any) error }) (*model.MirrorActivity, error) {
	var a model.MirrorActivity
	var locations, participants, status string
	var start, end, created, synced int64
	err := scanner.Scan(&a.ID, &a.Title, &a.GroupID, &a.GroupName, &locations, &participants, &status, &start, &end, &a.Notes, &created, &synced)
	if err != nil {
		return nil, err
	}
	if err := decodeList(locations, &a.Locations); err != nil {
		return nil, err
	}
	if err := decodeList(participants, &a.Participants); err != nil {
		return nil, err
	}
	a.Status = model.ActivityStatus(status)
	a.StartTime = fromMillis(start)
	a.EndTime = fromMillis(end)
	a.CreatedAt = fromMillis(created)
	a.SyncedAt = fromMillis(synced)
	return &a, nil
}

func (s *ActivityStore) Upsert(ctx context.Context, a model.Activity, syncedAt time.Time) error {
	locations, err := encodeList(nonNil(a.Locations))
	if err != nil {
		return err
	}
	participants, err := encodeList(nonNil(a.Participants))
	if err != nil {
		return err
	}
	status := a.Status
	if status == "" {
		status = model.ActivityPending
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mirror_activities (id, title, group_id, group_name, locations, participants, status, start_time, end_time, notes, created_at, synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     title = excluded.title,
		     group_id = excluded.group_id,
		     group_name = excluded.group_name,
		     locations = excluded.locations,
		     participants = excluded.participants,
		     status = excluded.status,
		     start_time = excluded.start_time,
		     end_time = excluded.end_time,
		     notes = excluded.notes,
		     created_at = excluded.created_at,
		     synced_at = excluded.synced_at`,
		a.ID, a.Title, a.GroupID, a.GroupName, locations, participants, string(status),
		toMillis(a.StartTime), toMillis(a.EndTime), a.Notes, toMillis(a.CreatedAt), toMillis(syncedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert activity: %w", err)
	}
	return nil
}

func (s *ActivityStore) GetByID(ctx context.Context, id string) (*model.MirrorActivity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+activityCols+` FROM mirror_activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

// ReadAll returns up to limit activities in store order. limit <= 0 means all.
// A non-empty owner restricts the read to the activities recorded for that user.
func (s *ActivityStore) ReadAll(ctx context.Context, owner string, limit int) ([]model.MirrorActivity, error) {
	if owner == "" {
		return s.list(ctx, `SELECT `+activityCols+` FROM mirror_activities LIMIT ?`, sqlLimit(limit))
	}
	return s.list(ctx, `SELECT `+activityCols+` FROM mirror_activities`+ownedBy+` LIMIT ?`, owner, string(KindActivity), sqlLimit(limit))
}

func (s *ActivityStore) list(ctx context.Context, query string, args ...any) ([]model.MirrorActivity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []model.MirrorActivity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}
