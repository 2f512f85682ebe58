package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/huddle/internal/connectivity"
	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/remote"
	"github.com/dukerupert/huddle/internal/remote/remotetest"
	"github.com/dukerupert/huddle/internal/remotesync"
	"github.com/dukerupert/huddle/internal/store"
)

type fixture struct {
	loader *Loader
	remote *remotetest.Store
	mirror *store.Mirror
	conn   *connectivity.Monitor
	now    time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		remote: remotetest.New(),
		mirror: store.NewMirror(db),
		conn:   connectivity.NewMonitor(connectivity.Config{Initial: true}, nil, nil),
		now:    time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	syncer := remotesync.New(remotesync.Config{Store: f.remote, Mirror: f.mirror, Now: clock})
	f.loader = New(Config{Connectivity: f.conn, Syncer: syncer, Mirror: f.mirror, Now: clock})
	return f
}

func (f *fixture) seed() {
	f.remote.Put(remote.CollectionUsers, "u1", map[string]any{
		"name": "Ana", "groups": []any{"g1", "g2"}, "proposals": []any{"p1", "p2"},
	})
	f.remote.Put(remote.CollectionUsers, "u2", map[string]any{"name": "Ben"})
	f.remote.Put(remote.CollectionGroups, "g1", map[string]any{"name": "Hikers", "members": []any{"u1", "u2"}})
	f.remote.Put(remote.CollectionGroups, "g2", map[string]any{"name": "Climbers", "members": []any{"u1"}})
	f.remote.Put(remote.CollectionProposals, "p1", map[string]any{"title": "Late", "groupId": "g1", "startTime": "2026-06-09T10:00:00Z"})
	f.remote.Put(remote.CollectionProposals, "p2", map[string]any{"title": "Early", "groupId": "g1", "startTime": "2026-06-02T10:00:00Z"})
}

func TestOnlineLoadWritesThrough(t *testing.T) {
	f := setup(t)
	f.seed()
	ctx := context.Background()

	res, err := f.loader.Groups(ctx, "u1")
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if res.Offline || len(res.Items) != 2 {
		t.Errorf("got offline=%v items=%d, want online with 2", res.Offline, len(res.Items))
	}
	if n, _ := f.mirror.Count(ctx, store.KindGroup); n != 2 {
		t.Errorf("mirrored groups = %d, want 2", n)
	}
}

func TestOfflineMakesNoTransportCalls(t *testing.T) {
	f := setup(t)
	f.seed()
	ctx := context.Background()

	if _, err := f.loader.Groups(ctx, "u1"); err != nil {
		t.Fatalf("online Groups: %v", err)
	}
	if _, err := f.loader.Members(ctx, "g1"); err != nil {
		t.Fatalf("online Members: %v", err)
	}
	if _, err := f.loader.Activities(ctx, "u1"); err != nil {
		t.Fatalf("online Activities: %v", err)
	}

	f.conn.Set(false)
	f.now = f.now.Add(5 * time.Minute)
	before := f.remote.Calls("")

	groups, err := f.loader.Groups(ctx, "u1")
	if err != nil {
		t.Fatalf("offline Groups: %v", err)
	}
	members, err := f.loader.Members(ctx, "g1")
	if err != nil {
		t.Fatalf("offline Members: %v", err)
	}
	cal, err := f.loader.Calendar(ctx, "u1")
	if err != nil {
		t.Fatalf("offline Calendar: %v", err)
	}

	if n := f.remote.Calls("") - before; n != 0 {
		t.Errorf("offline loads made %d transport calls, want 0", n)
	}
	if !groups.Offline || len(groups.Items) != 2 {
		t.Errorf("groups = %+v", groups)
	}
	if groups.Banner != "Offline – showing data synced 5 minutes ago" {
		t.Errorf("Banner = %q", groups.Banner)
	}
	if len(members.Items) != 2 || members.Items[0].ID != "u1" {
		t.Errorf("members = %+v, want [u1 u2]", members.Items)
	}
	if len(cal.Items) != 2 || cal.Items[0].ID != "p2" {
		t.Errorf("calendar = %+v, want p2 first", cal.Items)
	}
}

func TestOfflineReadsArePerUser(t *testing.T) {
	f := setup(t)
	f.seed()
	f.remote.Put(remote.CollectionUsers, "u2", map[string]any{"name": "Ben", "groups": []any{"g1"}})
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		if _, err := f.loader.Groups(ctx, id); err != nil {
			t.Fatalf("online Groups(%s): %v", id, err)
		}
		if _, err := f.loader.Activities(ctx, id); err != nil {
			t.Fatalf("online Activities(%s): %v", id, err)
		}
	}

	f.conn.Set(false)
	groups, err := f.loader.Groups(ctx, "u2")
	if err != nil {
		t.Fatalf("offline Groups: %v", err)
	}
	if len(groups.Items) != 1 || groups.Items[0].ID != "g1" {
		t.Errorf("u2 offline groups = %+v, want only g1", groups.Items)
	}
	acts, err := f.loader.Activities(ctx, "u2")
	if err != nil {
		t.Fatalf("offline Activities: %v", err)
	}
	if len(acts.Items) != 0 {
		t.Errorf("u2 offline activities = %+v, want none", acts.Items)
	}
	groups, _ = f.loader.Groups(ctx, "u1")
	if len(groups.Items) != 2 {
		t.Errorf("u1 offline groups = %d, want 2", len(groups.Items))
	}
}

func TestOfflineSubmissionsSkipTransport(t *testing.T) {
	f := setup(t)
	f.seed()
	f.remote.Put(remote.CollectionVoteSubmissions, "v1", map[string]any{"proposalId": "p1", "userId": "u2", "from": "2026-06-09T10:00:00Z", "to": "2026-06-09T12:00:00Z"})
	ctx := context.Background()

	online, err := f.loader.Submissions(ctx, "p1")
	if err != nil {
		t.Fatalf("online Submissions: %v", err)
	}
	if online.Offline || len(online.Items) != 1 {
		t.Errorf("online = %+v, want one vote", online)
	}
	if _, err := f.loader.Activities(ctx, "u1"); err != nil {
		t.Fatalf("online Activities: %v", err)
	}

	f.conn.Set(false)
	f.now = f.now.Add(time.Hour)
	before := f.remote.Calls("")
	res, err := f.loader.Submissions(ctx, "p1")
	if err != nil {
		t.Fatalf("offline Submissions: %v", err)
	}
	if n := f.remote.Calls("") - before; n != 0 {
		t.Errorf("offline Submissions made %d transport calls, want 0", n)
	}
	if !res.Offline || res.Items == nil || len(res.Items) != 0 {
		t.Errorf("res = %+v, want offline with empty items", res)
	}
	if res.Banner != "Offline – showing data synced 1 hour ago" {
		t.Errorf("Banner = %q", res.Banner)
	}
}

func TestOfflineEmptyMirror(t *testing.T) {
	f := setup(t)
	f.conn.Set(false)

	res, err := f.loader.Activities(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Activities: %v", err)
	}
	if !res.Offline || len(res.Items) != 0 || res.Items == nil {
		t.Errorf("res = %+v, want offline with empty items", res)
	}
	if res.Banner != "Offline – nothing synced yet" {
		t.Errorf("Banner = %q", res.Banner)
	}
}

func TestOnlineTransportFailureIsNotOffline(t *testing.T) {
	f := setup(t)
	f.remote.SetError(remote.CollectionUsers, "u1", &remote.TransportError{Op: "get", Err: errors.New("connection refused")})

	res, err := f.loader.Groups(context.Background(), "u1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !remote.IsUnavailable(err) {
		t.Errorf("IsUnavailable(%v) = false", err)
	}
	if res.Offline {
		t.Error("transport failure reported as offline")
	}
}

func TestFlagReadOncePerLoad(t *testing.T) {
	f := setup(t)
	f.seed()
	release := f.remote.Hold(remote.CollectionGroups, "g2")

	done := make(chan Result[model.Group], 1)
	go func() {
		res, _ := f.loader.Groups(context.Background(), "u1")
		done <- res
	}()

	// Wait for the fan-out to be issued, then drop connectivity mid-flight.
	deadline := time.Now().Add(2 * time.Second)
	for f.remote.Calls("get") < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	f.conn.Set(false)
	release()

	res := <-done
	if res.Offline || len(res.Items) != 2 {
		t.Errorf("res = offline=%v items=%d, want online with 2", res.Offline, len(res.Items))
	}
}

func TestBanner(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := Banner(now.Add(-2*time.Hour), now); got != "Offline – showing data synced 2 hours ago" {
		t.Errorf("Banner = %q", got)
	}
}
