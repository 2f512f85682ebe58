package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Kind names a mirrored entity type.
type Kind string

const (
	KindGroup    Kind = "group"
	KindMember   Kind = "member"
	KindActivity Kind = "activity"
)

var kindTables = map[Kind]string{
	KindGroup:    "mirror_groups",
	KindMember:   "mirror_members",
	KindActivity: "mirror_activities",
}

// Mirror is the local read-through copy of remote records. Records are
// written as a side effect of successful remote reads and are never evicted
// or deleted, so the mirror grows with every entity viewed.
type Mirror struct {
	db         *sql.DB
	Groups     *GroupStore
	Members    *MemberStore
	Activities *ActivityStore
	Owners     *OwnerStore
}

func NewMirror(db *sql.DB) *Mirror {
	return &Mirror{
		db:         db,
		Groups:     NewGroupStore(db),
		Members:    NewMemberStore(db),
		Activities: NewActivityStore(db),
		Owners:     NewOwnerStore(db),
	}
}

// LastSynced returns the newest synced_at of the given kind, or the zero
// time when nothing of that kind has been mirrored yet.
func (m *Mirror) LastSynced(ctx context.Context, kind Kind) (time.Time, error) {
	table, ok := kindTables[kind]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown mirror kind %q", kind)
	}
	var ms sql.NullInt64
	if err := m.db.QueryRowContext(ctx, `SELECT MAX(synced_at) FROM `+table).Scan(&ms); err != nil {
		return time.Time{}, fmt.Errorf("last synced %s: %w", kind, err)
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return fromMillis(ms.Int64), nil
}

// Count returns the number of mirrored records of the given kind.
func (m *Mirror) Count(ctx context.Context, kind Kind) (int, error) {
	table, ok := kindTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown mirror kind %q", kind)
	}
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}
